// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/registry"
)

// DefaultTemporalCapacity bounds a temporal pool built with a zero
// capacity.
const DefaultTemporalCapacity = 32

// TemporalConfig holds the parameters of a temporal pool.
type TemporalConfig struct {
	// Registry owns the snapshots. Required.
	Registry *registry.Registry

	// Capacity is the maximum number of snapshots across all sources.
	Capacity int

	Logger *slog.Logger
}

type snapshotKey struct {
	source message.ID
	time   float64
}

type snapshot struct {
	key   snapshotKey
	name  string
	proxy *proxy.Proxy
}

// Temporal caches per-time snapshots of source proxies.
type Temporal struct {
	registry *registry.Registry
	capacity int
	logger   *slog.Logger

	// order holds *snapshot with the most recently used at the front.
	order   *list.List
	entries map[snapshotKey]*list.Element
}

// NewTemporal returns an empty temporal pool.
func NewTemporal(cfg TemporalConfig) (*Temporal, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("temporal pool requires a registry: %w", registry.ErrInvalidArgument)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultTemporalCapacity
	}
	return &Temporal{
		registry: cfg.Registry,
		capacity: capacity,
		logger:   logger,
		order:    list.New(),
		entries:  make(map[snapshotKey]*list.Element),
	}, nil
}

// SnapshotName returns the registration name of the snapshot of
// source at time.
func SnapshotName(source message.ID, time float64) string {
	return source.String() + "@" + strconv.FormatFloat(time, 'g', -1, 64)
}

// ParseSnapshotName splits a name produced by [SnapshotName].
func ParseSnapshotName(name string) (message.ID, float64, error) {
	idText, timeText, ok := strings.Cut(name, "@")
	if !ok {
		return message.NullID, 0, fmt.Errorf("malformed snapshot name %q", name)
	}
	id, err := message.ParseID(idText)
	if err != nil {
		return message.NullID, 0, fmt.Errorf("snapshot name %q: %w", name, err)
	}
	time, err := strconv.ParseFloat(timeText, 64)
	if err != nil {
		return message.NullID, 0, fmt.Errorf("snapshot name %q: %w", name, err)
	}
	return id, time, nil
}

// Capture snapshots source at time and returns the snapshot proxy. A
// snapshot already held for the same key is overwritten with the
// source's current properties.
func (t *Temporal) Capture(source *proxy.Proxy, time float64) (*proxy.Proxy, error) {
	if source == nil {
		t.logger.Error("Capture called without a source", "time", time)
		return nil, fmt.Errorf("capturing snapshot: %w", registry.ErrInvalidArgument)
	}
	id := source.EnsureGlobalID()
	if id == message.NullID {
		return nil, fmt.Errorf("capturing %s: source has no global id", source.XMLName())
	}
	key := snapshotKey{source: id, time: time}

	if element, ok := t.entries[key]; ok {
		t.order.MoveToFront(element)
		held := element.Value.(*snapshot).proxy
		if err := held.Copy(source); err != nil {
			return nil, err
		}
		if err := held.UpdateVTKObjects(); err != nil {
			return nil, fmt.Errorf("refreshing snapshot %s: %w", SnapshotName(id, time), err)
		}
		return held, nil
	}

	copied := proxy.New(source.Definition(), source.Session())
	if err := copied.Copy(source); err != nil {
		return nil, err
	}
	name := SnapshotName(id, time)
	if _, err := t.registry.RegisterProxy(registry.TemporalCacheGroup, name, copied); err != nil {
		return nil, fmt.Errorf("registering snapshot %s: %w", name, err)
	}
	t.entries[key] = t.order.PushFront(&snapshot{key: key, name: name, proxy: copied})
	t.logger.Debug("snapshot captured", "source", id, "time", time, "id", copied.GlobalID())

	var errs []error
	for t.order.Len() > t.capacity {
		errs = append(errs, t.remove(t.order.Back()))
	}
	return copied, errors.Join(errs...)
}

// Lookup returns the snapshot of source at time, or nil.
func (t *Temporal) Lookup(source message.ID, time float64) *proxy.Proxy {
	element, ok := t.entries[snapshotKey{source: source, time: time}]
	if !ok {
		return nil
	}
	t.order.MoveToFront(element)
	return element.Value.(*snapshot).proxy
}

// Times returns the snapshot times held for source in ascending order.
func (t *Temporal) Times(source message.ID) []float64 {
	var times []float64
	for key := range t.entries {
		if key.source == source {
			times = append(times, key.time)
		}
	}
	slices.Sort(times)
	return times
}

// Len returns the number of snapshots held.
func (t *Temporal) Len() int { return t.order.Len() }

// Capacity returns the snapshot bound.
func (t *Temporal) Capacity() int { return t.capacity }

// Evict drops every snapshot of source and returns how many there
// were.
func (t *Temporal) Evict(source message.ID) (int, error) {
	var doomed []*list.Element
	for key, element := range t.entries {
		if key.source == source {
			doomed = append(doomed, element)
		}
	}
	err := t.registry.Batch(func() error {
		var errs []error
		for _, element := range doomed {
			errs = append(errs, t.remove(element))
		}
		return errors.Join(errs...)
	})
	return len(doomed), err
}

// Clear drops every snapshot.
func (t *Temporal) Clear() error {
	return t.registry.Batch(func() error {
		var errs []error
		for t.order.Len() > 0 {
			errs = append(errs, t.remove(t.order.Back()))
		}
		return errors.Join(errs...)
	})
}

func (t *Temporal) remove(element *list.Element) error {
	s := t.order.Remove(element).(*snapshot)
	delete(t.entries, s.key)
	if _, err := t.registry.UnRegisterProxy(registry.TemporalCacheGroup, s.name, s.proxy); err != nil {
		return fmt.Errorf("unregistering snapshot %s: %w", s.name, err)
	}
	return nil
}

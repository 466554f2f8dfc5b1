// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/registry"
)

// Registry groups owned by the depot.
const (
	GlobalOptionsGroup = "export_global"
	WritersGroup       = "export_writers"
	ScreenshotsGroup   = "export_screenshots"
)

// InputProperty is the writer property set to the exported proxy.
const InputProperty = "Input"

// Ref names a proxy definition.
type Ref struct {
	Group string
	Name  string
}

// DepotConfig holds the parameters of a depot.
type DepotConfig struct {
	// Registry owns the depot's proxies. Required.
	Registry *registry.Registry

	// GlobalOptions is the definition of the global options proxy.
	// Required for GlobalOptions.
	GlobalOptions Ref

	Logger *slog.Logger
}

// Depot creates export proxies on demand and hands back the same
// proxy for the same key.
type Depot struct {
	registry *registry.Registry
	global   Ref
	logger   *slog.Logger
}

// NewDepot returns a depot over cfg.Registry.
func NewDepot(cfg DepotConfig) (*Depot, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("export depot requires a registry: %w", registry.ErrInvalidArgument)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Depot{registry: cfg.Registry, global: cfg.GlobalOptions, logger: logger}, nil
}

// WriterKey returns the registration name of the writer for input.
func WriterKey(group, format string, input message.ID) string {
	return group + "|" + format + "|" + strconv.FormatUint(uint64(input), 10)
}

// ParseWriterKey splits a name produced by [WriterKey].
func ParseWriterKey(name string) (group, format string, input message.ID, err error) {
	parts := strings.Split(name, "|")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", 0, fmt.Errorf("malformed writer key %q", name)
	}
	id, err := message.ParseID(parts[2])
	if err != nil {
		return "", "", 0, fmt.Errorf("writer key %q: %w", name, err)
	}
	return parts[0], parts[1], id, nil
}

// ScreenshotKey returns the registration name of a screenshot proxy.
func ScreenshotKey(group, format string) string {
	return group + "|" + format
}

// GlobalOptions returns the global options proxy, creating it on first
// use.
func (d *Depot) GlobalOptions() (*proxy.Proxy, error) {
	if d.global.Group == "" || d.global.Name == "" {
		return nil, fmt.Errorf("no global options definition configured: %w", registry.ErrInvalidArgument)
	}
	return d.lookupOrCreate(GlobalOptionsGroup, d.global.Name, d.global, nil)
}

// HasWriterProxy reports whether a writer for input exists.
func (d *Depot) HasWriterProxy(group, format string, input *proxy.Proxy) bool {
	if input == nil || input.GlobalID() == message.NullID {
		return false
	}
	return d.registry.GetProxy(WritersGroup, WriterKey(group, format, input.GlobalID())) != nil
}

// WriterProxy returns the writer of definition group/format bound to
// input, creating it on first use.
func (d *Depot) WriterProxy(input *proxy.Proxy, group, format string) (*proxy.Proxy, error) {
	if input == nil {
		d.logger.Error("WriterProxy called without an input", "group", group, "format", format)
		return nil, fmt.Errorf("writer %s/%s: %w", group, format, registry.ErrInvalidArgument)
	}
	id := input.EnsureGlobalID()
	if id == message.NullID {
		return nil, fmt.Errorf("writer %s/%s: input has no global id", group, format)
	}
	return d.lookupOrCreate(WritersGroup, WriterKey(group, format, id), Ref{group, format}, func(writer *proxy.Proxy) error {
		if _, ok := writer.Definition().Property(InputProperty); !ok {
			return nil
		}
		return writer.SetProxies(InputProperty, input)
	})
}

// ScreenshotProxy returns the screenshot options proxy of definition
// group/format, creating it on first use.
func (d *Depot) ScreenshotProxy(group, format string) (*proxy.Proxy, error) {
	return d.lookupOrCreate(ScreenshotsGroup, ScreenshotKey(group, format), Ref{group, format}, nil)
}

func (d *Depot) lookupOrCreate(group, name string, definition Ref, setup func(*proxy.Proxy) error) (*proxy.Proxy, error) {
	if existing := d.registry.GetProxy(group, name); existing != nil {
		return existing, nil
	}
	p, err := d.registry.NewProxy(definition.Group, definition.Name)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		if err := setup(p); err != nil {
			return nil, fmt.Errorf("configuring %s/%s: %w", definition.Group, definition.Name, err)
		}
	}
	if _, err := d.registry.RegisterProxy(group, name, p); err != nil {
		return nil, err
	}
	d.logger.Debug("export proxy created", "group", group, "name", name)
	return p, nil
}

// Writers returns the registration names of every writer in name
// order.
func (d *Depot) Writers() []string {
	var names []string
	for _, tuple := range d.registry.GroupTuples(WritersGroup) {
		names = append(names, tuple.Name)
	}
	return names
}

// ReleaseWriters unregisters every writer bound to input, returning
// how many were removed.
func (d *Depot) ReleaseWriters(input message.ID) (int, error) {
	removed := 0
	err := d.registry.Batch(func() error {
		var errs []error
		for _, tuple := range d.registry.GroupTuples(WritersGroup) {
			_, _, id, err := ParseWriterKey(tuple.Name)
			if err != nil || id != input {
				continue
			}
			n, err := d.registry.UnRegisterProxy(tuple.Group, tuple.Name, tuple.Proxy)
			removed += n
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return removed, err
}

// Clear unregisters every proxy the depot created.
func (d *Depot) Clear() error {
	return d.registry.Batch(func() error {
		var errs []error
		for _, group := range []string{GlobalOptionsGroup, WritersGroup, ScreenshotsGroup} {
			for _, tuple := range d.registry.GroupTuples(group) {
				if _, err := d.registry.UnRegisterProxy(tuple.Group, tuple.Name, tuple.Proxy); err != nil {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)
	})
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// Kind names a link implementation in records and documents.
const (
	KindProperty = "property"
	KindProxy    = "proxy"
)

// ErrUnresolvedProxy is returned when restoring a link whose
// participant cannot be located.
var ErrUnresolvedProxy = errors.New("link participant cannot be located")

// Link is a named relationship between proxies.
type Link interface {
	Name() string
	Kind() string

	// State returns the link's record for the pipeline state.
	State() message.LinkRecord

	// ProxyIDs returns the global ids of every participant.
	ProxyIDs() []message.ID

	// RemoveProxy drops every participant entry for p.
	RemoveProxy(p *proxy.Proxy)

	// Close detaches the link from its proxies. A closed link no
	// longer propagates.
	Close()
}

type participant struct {
	proxy     *proxy.Proxy
	property  string
	direction message.LinkDirection
	handle    proxy.ObserverHandle
}

// base holds the participant list shared by both link kinds.
type base struct {
	name         string
	participants []participant
	propagating  bool
}

func (b *base) Name() string { return b.name }

func (b *base) ProxyIDs() []message.ID {
	var ids []message.ID
	for _, entry := range b.participants {
		if id := entry.proxy.GlobalID(); !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *base) entries() []message.LinkEntry {
	entries := make([]message.LinkEntry, len(b.participants))
	for i, entry := range b.participants {
		entries[i] = message.LinkEntry{
			GlobalID:  entry.proxy.EnsureGlobalID(),
			Property:  entry.property,
			Direction: entry.direction,
		}
	}
	return entries
}

func (b *base) add(entry participant, onChange func(source participant, property string)) {
	if entry.direction == message.LinkInput {
		entry.handle = entry.proxy.Observe(proxy.PropertyModified, func(event proxy.Event) {
			onChange(entry, event.Property)
		})
	}
	b.participants = append(b.participants, entry)
}

func (b *base) RemoveProxy(p *proxy.Proxy) {
	b.participants = slices.DeleteFunc(b.participants, func(entry participant) bool {
		if entry.proxy != p {
			return false
		}
		if entry.handle != 0 {
			p.RemoveObserver(entry.handle)
		}
		return true
	})
}

func (b *base) Close() {
	for _, entry := range b.participants {
		if entry.handle != 0 {
			entry.proxy.RemoveObserver(entry.handle)
		}
	}
	b.participants = nil
}

// copyValue sets value on every output participant accepted by
// target. Changes made while propagating do not propagate again, so
// cycles through bidirectional pairs terminate.
func (b *base) copyValue(value message.Property, target func(participant) (string, bool)) error {
	if b.propagating {
		return nil
	}
	b.propagating = true
	defer func() { b.propagating = false }()

	var errs []error
	for _, entry := range b.participants {
		if entry.direction != message.LinkOutput {
			continue
		}
		property, ok := target(entry)
		if !ok {
			continue
		}
		copied := value.Clone()
		copied.Name = property
		if err := entry.proxy.SetProperty(copied); err != nil {
			errs = append(errs, fmt.Errorf("link %s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// FromRecord rebuilds a link from its record, locating participants
// through locator.
func FromRecord(record message.LinkRecord, locator proxy.Locator) (Link, error) {
	var link interface {
		Link
		restore(message.LinkEntry, *proxy.Proxy) error
	}
	switch record.Kind {
	case KindProperty:
		link = NewPropertyLink(record.Name)
	case KindProxy:
		proxyLink := NewProxyLink(record.Name)
		for _, name := range record.Exceptions {
			proxyLink.AddException(name)
		}
		link = proxyLink
	default:
		return nil, fmt.Errorf("link %s: unknown kind %q", record.Name, record.Kind)
	}
	for _, entry := range record.Entries {
		var participant *proxy.Proxy
		if locator != nil {
			participant = locator.LocateProxy(entry.GlobalID)
		}
		if participant == nil {
			link.Close()
			return nil, fmt.Errorf("link %s: %w: id %d", record.Name, ErrUnresolvedProxy, entry.GlobalID)
		}
		if err := link.restore(entry, participant); err != nil {
			link.Close()
			return nil, err
		}
	}
	return link, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// PropertyLink ties one named property on each participant.
// Participants may use different property names, but all must share
// the same kind.
type PropertyLink struct {
	base
	logger *slog.Logger
}

// NewPropertyLink returns an empty link.
func NewPropertyLink(name string) *PropertyLink {
	return &PropertyLink{base: base{name: name}, logger: slog.New(slog.DiscardHandler)}
}

// SetLogger sets the logger used to report propagation failures.
func (l *PropertyLink) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

func (l *PropertyLink) Kind() string { return KindProperty }

// AddLinkedProperty adds p.property in the given role.
func (l *PropertyLink) AddLinkedProperty(p *proxy.Proxy, property string, direction message.LinkDirection) error {
	if _, ok := p.Property(property); !ok {
		return fmt.Errorf("link %s: %s/%s has no property %q", l.name, p.XMLGroup(), p.XMLName(), property)
	}
	if direction != message.LinkInput && direction != message.LinkOutput {
		return fmt.Errorf("link %s: invalid direction %d", l.name, direction)
	}
	l.add(participant{proxy: p, property: property, direction: direction}, l.propagate)
	return nil
}

func (l *PropertyLink) restore(entry message.LinkEntry, p *proxy.Proxy) error {
	return l.AddLinkedProperty(p, entry.Property, entry.Direction)
}

func (l *PropertyLink) propagate(source participant, property string) {
	if property != source.property {
		return
	}
	value, _ := source.proxy.Property(property)
	err := l.copyValue(value, func(target participant) (string, bool) {
		return target.property, true
	})
	if err != nil {
		l.logger.Error("property link propagation failed", "link", l.name, "error", err)
	}
}

// State returns the link's record.
func (l *PropertyLink) State() message.LinkRecord {
	return message.LinkRecord{Name: l.name, Kind: KindProperty, Entries: l.entries()}
}

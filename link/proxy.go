// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// ProxyLink ties every property of its participants except the
// exceptions. Participants must share a definition.
type ProxyLink struct {
	base
	exceptions []string
	logger     *slog.Logger
}

// NewProxyLink returns an empty link.
func NewProxyLink(name string) *ProxyLink {
	return &ProxyLink{base: base{name: name}, logger: slog.New(slog.DiscardHandler)}
}

// SetLogger sets the logger used to report propagation failures.
func (l *ProxyLink) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

func (l *ProxyLink) Kind() string { return KindProxy }

// AddLinkedProxy adds p in the given role.
func (l *ProxyLink) AddLinkedProxy(p *proxy.Proxy, direction message.LinkDirection) error {
	if direction != message.LinkInput && direction != message.LinkOutput {
		return fmt.Errorf("link %s: invalid direction %d", l.name, direction)
	}
	for _, entry := range l.participants {
		if entry.proxy.XMLGroup() != p.XMLGroup() || entry.proxy.XMLName() != p.XMLName() {
			return fmt.Errorf("link %s: %s/%s does not match %s/%s", l.name,
				p.XMLGroup(), p.XMLName(), entry.proxy.XMLGroup(), entry.proxy.XMLName())
		}
	}
	l.add(participant{proxy: p, direction: direction}, l.propagate)
	return nil
}

// AddException excludes property from propagation.
func (l *ProxyLink) AddException(property string) {
	if !slices.Contains(l.exceptions, property) {
		l.exceptions = append(l.exceptions, property)
	}
}

// RemoveException re-enables propagation of property.
func (l *ProxyLink) RemoveException(property string) {
	l.exceptions = slices.DeleteFunc(l.exceptions, func(name string) bool { return name == property })
}

// Exceptions returns the excluded property names.
func (l *ProxyLink) Exceptions() []string { return slices.Clone(l.exceptions) }

func (l *ProxyLink) restore(entry message.LinkEntry, p *proxy.Proxy) error {
	return l.AddLinkedProxy(p, entry.Direction)
}

func (l *ProxyLink) propagate(source participant, property string) {
	if slices.Contains(l.exceptions, property) {
		return
	}
	value, ok := source.proxy.Property(property)
	if !ok {
		return
	}
	err := l.copyValue(value, func(participant) (string, bool) { return property, true })
	if err != nil {
		l.logger.Error("proxy link propagation failed", "link", l.name, "property", property, "error", err)
	}
}

// State returns the link's record.
func (l *ProxyLink) State() message.LinkRecord {
	return message.LinkRecord{
		Name:       l.name,
		Kind:       KindProxy,
		Entries:    l.entries(),
		Exceptions: slices.Clone(l.exceptions),
	}
}

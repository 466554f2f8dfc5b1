// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package locator

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// ErrUnresolvableType is returned by resolvers when an id's recorded
// type is missing or cannot be instantiated.
var ErrUnresolvableType = errors.New("unresolvable proxy type")

// Resolver constructs the proxy for an id. A resolver that creates a
// proxy must call [Locator.Bind] before applying the proxy's state,
// so references back to the same id resolve to it. NewProxy returns
// (nil, nil) when the id is simply not available.
type Resolver interface {
	NewProxy(id message.ID, locator *Locator) (*proxy.Proxy, error)
}

// Factory instantiates blank proxies by definition. The registry is
// the usual factory.
type Factory interface {
	NewProxy(group, name string) (*proxy.Proxy, error)
}

// Locator resolves ids to proxies, caching every result.
type Locator struct {
	resolver Resolver
	session  proxy.Session
	logger   *slog.Logger

	proxies map[message.ID]*proxy.Proxy
	unpins  []func()
	errs    []error
}

// New returns a locator delegating to resolver. When session is
// non-nil, every located proxy with a global id is pinned until
// [Locator.Clear]. logger may be nil.
func New(resolver Resolver, session proxy.Session, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Locator{
		resolver: resolver,
		session:  session,
		logger:   logger,
		proxies:  make(map[message.ID]*proxy.Proxy),
	}
}

// LocateProxy returns the proxy for id, resolving it on first use.
// It returns nil for NullID, for ids the resolver cannot find, and
// for ids whose resolution failed.
func (l *Locator) LocateProxy(id message.ID) *proxy.Proxy {
	if id == message.NullID {
		return nil
	}
	if p, ok := l.proxies[id]; ok {
		return p
	}
	if l.resolver == nil {
		return nil
	}
	p, err := l.resolver.NewProxy(id, l)
	if err != nil {
		l.logger.Error("cannot resolve proxy", "id", id, "error", err)
		l.errs = append(l.errs, fmt.Errorf("resolving proxy %d: %w", id, err))
		// Remember the failure so a cycle or a repeated reference does
		// not retry it.
		l.proxies[id] = nil
		return nil
	}
	if p == nil {
		return nil
	}
	l.Bind(id, p)
	return p
}

// Bind records p as the proxy for id. Binding an id twice keeps the
// first proxy.
func (l *Locator) Bind(id message.ID, p *proxy.Proxy) {
	if existing, ok := l.proxies[id]; ok && existing != nil {
		return
	}
	l.proxies[id] = p
	if l.session != nil && p != nil {
		if live := p.GlobalID(); live != message.NullID {
			l.unpins = append(l.unpins, l.session.Pin(live))
		}
	}
}

// Located returns every successfully located proxy, ordered by the
// id it was located under.
func (l *Locator) Located() []*proxy.Proxy {
	var out []*proxy.Proxy
	for _, id := range slices.Sorted(maps.Keys(l.proxies)) {
		if p := l.proxies[id]; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Err returns every resolution failure since the last Clear.
func (l *Locator) Err() error { return errors.Join(l.errs...) }

// Clear drops the cache and unpins every located proxy.
func (l *Locator) Clear() {
	unpins := l.unpins
	l.unpins = nil
	clear(l.proxies)
	l.errs = nil
	for _, unpin := range unpins {
		unpin()
	}
}

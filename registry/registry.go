// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/bureau-foundation/proxysync/link"
	"github.com/bureau-foundation/proxysync/lib/version"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/selection"
)

const (
	// PrototypeSuffix marks groups holding memoized prototypes.
	PrototypeSuffix = "_prototypes"

	// SettingsGroup holds per-client settings proxies, which are never
	// persisted or synchronized.
	SettingsGroup = "settings"

	// TemporalCacheGroup holds per-client time-step snapshots. Like
	// settings it is never persisted or listed in the pipeline state.
	TemporalCacheGroup = "temporal_caches"

	// DefaultMaxNameSuffix bounds the suffix search of
	// GetUniqueProxyName.
	DefaultMaxNameSuffix = 1_000_000
)

// ErrInvalidArgument is returned for missing required arguments. The
// call is logged and has no effect.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNameSpaceExhausted is returned by GetUniqueProxyName when every
// suffix up to the configured bound is taken.
var ErrNameSpaceExhausted = errors.New("proxy name space exhausted")

// IsTransientGroup reports whether group is excluded from persistence
// and synchronization.
func IsTransientGroup(group string) bool {
	return group == SettingsGroup || group == TemporalCacheGroup || strings.HasSuffix(group, PrototypeSuffix)
}

// Config holds the parameters of a registry.
type Config struct {
	// Session owns the proxies. Required.
	Session proxy.Session

	// Definitions is the source of prototypes and of proxies created
	// by NewProxy. Required.
	Definitions *proxy.DefinitionManager

	// Logger receives caller errors and load failures. Nil discards.
	Logger *slog.Logger

	// MaxNameSuffix bounds GetUniqueProxyName. Zero means
	// DefaultMaxNameSuffix.
	MaxNameSuffix int

	// DocumentVersion is written by SaveXMLState and bounds the
	// versions LoadXMLState accepts. Zero means version.Document.
	DocumentVersion version.Triple
}

// Tuple is one registration.
type Tuple struct {
	Group string
	Name  string
	Proxy *proxy.Proxy
}

type entry struct {
	proxy   *proxy.Proxy
	handles []proxy.ObserverHandle
	// retained is true when the registry holds a session reference
	// for this tuple.
	retained bool
}

// Registry is the proxy registry of one session.
type Registry struct {
	session     proxy.Session
	definitions *proxy.DefinitionManager
	logger      *slog.Logger
	maxSuffix   int
	docVersion  version.Triple

	// groups maps group -> name -> entries in registration order.
	groups map[string]map[string][]*entry

	modified map[*proxy.Proxy]bool

	links           map[string]link.Link
	selectionModels map[string]*selection.Model

	subscribers    []subscriber
	nextSubscriber uint64

	pipeline *PipelineState

	// deferred counts nested batches; state updates requested inside
	// a batch are coalesced into one at the end.
	deferred       int
	pendingUpdate  bool
	cancelDefWatch func()
}

// New creates a registry and registers its pipeline state with the
// session at [message.RegistryID].
func New(cfg Config) (*Registry, error) {
	if cfg.Session == nil || cfg.Definitions == nil {
		return nil, fmt.Errorf("registry requires a session and definitions: %w", ErrInvalidArgument)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxSuffix := cfg.MaxNameSuffix
	if maxSuffix <= 0 {
		maxSuffix = DefaultMaxNameSuffix
	}
	docVersion := cfg.DocumentVersion
	if docVersion == (version.Triple{}) {
		docVersion = version.Document
	}
	r := &Registry{
		session:         cfg.Session,
		definitions:     cfg.Definitions,
		logger:          logger,
		maxSuffix:       maxSuffix,
		docVersion:      docVersion,
		groups:          make(map[string]map[string][]*entry),
		modified:        make(map[*proxy.Proxy]bool),
		links:           make(map[string]link.Link),
		selectionModels: make(map[string]*selection.Model),
	}
	r.pipeline = &PipelineState{registry: r, enabled: true}
	r.session.RegisterRemoteObject(r.pipeline)
	r.cancelDefWatch = r.definitions.OnChange(r.RemovePrototype)
	return r, nil
}

// Close stops watching definitions and detaches the pipeline state
// from the session. Registered proxies are left alone; call
// UnRegisterProxies first to release them.
func (r *Registry) Close() {
	r.cancelDefWatch()
	r.session.UnregisterRemoteObject(message.RegistryID)
}

// Session returns the registry's session.
func (r *Registry) Session() proxy.Session { return r.session }

// Definitions returns the definition manager.
func (r *Registry) Definitions() *proxy.DefinitionManager { return r.definitions }

// PipelineState returns the registry's remote-object view.
func (r *Registry) PipelineState() *PipelineState { return r.pipeline }

// NewProxy instantiates a blank proxy of group/name in the registry's
// session. The proxy is not registered.
func (r *Registry) NewProxy(group, name string) (*proxy.Proxy, error) {
	definition := r.definitions.Find(group, name)
	if definition == nil {
		return nil, fmt.Errorf("%w: %s/%s", proxy.ErrUnknownDefinition, group, name)
	}
	return proxy.New(definition, r.session), nil
}

// RegisterProxy adds the tuple (group, name, p) and returns the name
// used. An empty name is derived from the proxy's label through
// GetUniqueProxyName. Registering an existing tuple again is a no-op.
//
// A located proxy outside the prototype groups gets a global id, is
// pushed if it never was, and triggers a state update.
func (r *Registry) RegisterProxy(group, name string, p *proxy.Proxy) (string, error) {
	if p == nil || group == "" {
		r.logger.Error("RegisterProxy called without a proxy or group", "group", group, "name", name)
		return "", fmt.Errorf("registering proxy %q in group %q: %w", name, group, ErrInvalidArgument)
	}
	if name == "" {
		unique, err := r.GetUniqueProxyName(group, p.Label(), false)
		if err != nil {
			return "", err
		}
		name = unique
	}
	if r.hasTuple(group, name, p) {
		return name, nil
	}

	// Prototypes are templates; editing one never marks it modified.
	located := p.Location() != message.LocationNone && !p.IsPrototype() && !strings.HasSuffix(group, PrototypeSuffix)
	e := &entry{proxy: p}
	e.handles = []proxy.ObserverHandle{
		p.Observe(proxy.PropertyModified, func(event proxy.Event) {
			if located {
				r.modified[p] = true
			}
			r.notify(Notification{Kind: PropertyModified, Group: group, Name: name, Proxy: p, Property: event.Property})
		}),
		p.Observe(proxy.StateChanged, func(proxy.Event) {
			delete(r.modified, p)
			r.notify(Notification{Kind: StateChanged, Group: group, Name: name, Proxy: p})
		}),
		p.Observe(proxy.Updated, func(proxy.Event) {
			delete(r.modified, p)
		}),
		p.Observe(proxy.UpdateInformation, func(proxy.Event) {
			r.notify(Notification{Kind: UpdateInformation, Group: group, Name: name, Proxy: p})
		}),
	}

	if located {
		if id := p.EnsureGlobalID(); id != message.NullID {
			r.session.Retain(id)
			e.retained = true
		}
	}

	names := r.groups[group]
	if names == nil {
		names = make(map[string][]*entry)
		r.groups[group] = names
	}
	names[name] = append(names[name], e)
	if p.IsModified() && located {
		r.modified[p] = true
	}
	r.notify(Notification{Kind: Registered, Group: group, Name: name, Proxy: p})

	if !located {
		return name, nil
	}
	var errs []error
	if p.IsModified() {
		if err := p.UpdateVTKObjects(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.TriggerStateUpdate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return name, fmt.Errorf("registering %s/%s: %w", group, name, err)
	}
	return name, nil
}

func (r *Registry) hasTuple(group, name string, p *proxy.Proxy) bool {
	for _, e := range r.groups[group][name] {
		if e.proxy == p {
			return true
		}
	}
	return false
}

// UnRegisterProxy removes the exact tuple (group, name, p) and
// returns the number of tuples removed.
func (r *Registry) UnRegisterProxy(group, name string, p *proxy.Proxy) (int, error) {
	if group == "" || name == "" || p == nil {
		r.logger.Error("UnRegisterProxy called with an incomplete tuple", "group", group, "name", name)
		return 0, fmt.Errorf("unregistering %s/%s: %w", group, name, ErrInvalidArgument)
	}
	return r.unregister(r.match(func(t Tuple) bool {
		return t.Group == group && t.Name == name && t.Proxy == p
	}))
}

// UnRegisterProxyByName removes every tuple named name in any group.
func (r *Registry) UnRegisterProxyByName(name string) (int, error) {
	if name == "" {
		r.logger.Error("UnRegisterProxyByName called without a name")
		return 0, fmt.Errorf("unregistering by name: %w", ErrInvalidArgument)
	}
	return r.unregister(r.match(func(t Tuple) bool { return t.Name == name }))
}

// UnRegisterProxyByProxy removes every tuple holding p in any group.
func (r *Registry) UnRegisterProxyByProxy(p *proxy.Proxy) (int, error) {
	if p == nil {
		r.logger.Error("UnRegisterProxyByProxy called without a proxy")
		return 0, fmt.Errorf("unregistering by proxy: %w", ErrInvalidArgument)
	}
	return r.unregister(r.match(func(t Tuple) bool { return t.Proxy == p }))
}

// UnRegisterProxies removes every tuple, including prototypes, every
// link and every selection model.
func (r *Registry) UnRegisterProxies() error {
	return r.Batch(func() error {
		_, err := r.unregister(r.match(func(Tuple) bool { return true }))
		for _, name := range slices.Sorted(maps.Keys(r.links)) {
			r.links[name].Close()
			delete(r.links, name)
		}
		clear(r.selectionModels)
		r.pendingUpdate = true
		return err
	})
}

// match returns the tuples accepted by keep, in group/name order.
func (r *Registry) match(keep func(Tuple) bool) []Tuple {
	var out []Tuple
	for _, t := range r.tuples(true) {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) unregister(tuples []Tuple) (int, error) {
	if len(tuples) == 0 {
		return 0, nil
	}
	updated := false
	for _, t := range tuples {
		if r.removeTuple(t) && !strings.HasSuffix(t.Group, PrototypeSuffix) {
			updated = true
		}
	}
	if !updated {
		return len(tuples), nil
	}
	return len(tuples), r.TriggerStateUpdate()
}

// removeTuple drops one tuple, releasing the registry's hold on the
// proxy. It reports whether the tuple existed.
func (r *Registry) removeTuple(t Tuple) bool {
	names := r.groups[t.Group]
	entries := names[t.Name]
	i := slices.IndexFunc(entries, func(e *entry) bool { return e.proxy == t.Proxy })
	if i < 0 {
		return false
	}
	e := entries[i]
	for _, handle := range e.handles {
		t.Proxy.RemoveObserver(handle)
	}
	entries = slices.Delete(entries, i, i+1)
	if len(entries) == 0 {
		delete(names, t.Name)
		if len(names) == 0 {
			delete(r.groups, t.Group)
		}
	} else {
		names[t.Name] = entries
	}

	if !r.isRegistered(t.Proxy) {
		delete(r.modified, t.Proxy)
		for _, l := range r.links {
			l.RemoveProxy(t.Proxy)
		}
	}
	r.notify(Notification{Kind: Unregistered, Group: t.Group, Name: t.Name, Proxy: t.Proxy})
	if e.retained {
		r.session.Release(t.Proxy.GlobalID())
	}
	return true
}

func (r *Registry) isRegistered(p *proxy.Proxy) bool {
	for _, names := range r.groups {
		for _, entries := range names {
			for _, e := range entries {
				if e.proxy == p {
					return true
				}
			}
		}
	}
	return false
}

// tuples returns every registration in group, name, registration
// order. Transient groups are included only when includeTransient is
// set.
func (r *Registry) tuples(includeTransient bool) []Tuple {
	var out []Tuple
	for _, group := range slices.Sorted(maps.Keys(r.groups)) {
		if !includeTransient && IsTransientGroup(group) {
			continue
		}
		names := r.groups[group]
		for _, name := range slices.Sorted(maps.Keys(names)) {
			for _, e := range names[name] {
				out = append(out, Tuple{Group: group, Name: name, Proxy: e.proxy})
			}
		}
	}
	return out
}

// Tuples returns every non-transient registration in group/name order.
func (r *Registry) Tuples() []Tuple { return r.tuples(false) }

// GroupTuples returns the registrations of one group, which may be a
// transient group.
func (r *Registry) GroupTuples(group string) []Tuple {
	return r.match(func(t Tuple) bool { return t.Group == group })
}

// Groups returns the names of groups with at least one registration,
// sorted. Transient groups are listed only when includeTransient is
// set.
func (r *Registry) Groups(includeTransient bool) []string {
	var out []string
	for _, group := range slices.Sorted(maps.Keys(r.groups)) {
		if includeTransient || !IsTransientGroup(group) {
			out = append(out, group)
		}
	}
	return out
}

// GetProxy returns the first proxy registered as group/name, or nil.
func (r *Registry) GetProxy(group, name string) *proxy.Proxy {
	if entries := r.groups[group][name]; len(entries) > 0 {
		return entries[0].proxy
	}
	return nil
}

// GetProxies returns every proxy registered as group/name.
func (r *Registry) GetProxies(group, name string) []*proxy.Proxy {
	var out []*proxy.Proxy
	for _, e := range r.groups[group][name] {
		out = append(out, e.proxy)
	}
	return out
}

// GetProxyByID returns the registered proxy with the given global id,
// or nil. Prototypes never match.
func (r *Registry) GetProxyByID(id message.ID) *proxy.Proxy {
	if id == message.NullID {
		return nil
	}
	for _, t := range r.tuples(true) {
		if !strings.HasSuffix(t.Group, PrototypeSuffix) && t.Proxy.GlobalID() == id {
			return t.Proxy
		}
	}
	return nil
}

// GetProxyName returns the first name p is registered under in group,
// or "".
func (r *Registry) GetProxyName(group string, p *proxy.Proxy) string {
	if names := r.GetProxyNames(group, p); len(names) > 0 {
		return names[0]
	}
	return ""
}

// GetProxyNames returns every name p is registered under in group.
func (r *Registry) GetProxyNames(group string, p *proxy.Proxy) []string {
	var out []string
	for _, t := range r.GroupTuples(group) {
		if t.Proxy == p {
			out = append(out, t.Name)
		}
	}
	return out
}

// FindTuples returns every registration of p, transient ones included.
func (r *Registry) FindTuples(p *proxy.Proxy) []Tuple {
	return r.match(func(t Tuple) bool { return t.Proxy == p })
}

// IsProxyInGroup reports whether p is registered in group.
func (r *Registry) IsProxyInGroup(p *proxy.Proxy, group string) bool {
	return len(r.GetProxyNames(group, p)) > 0
}

// NumberOfProxies returns the number of tuples in group.
func (r *Registry) NumberOfProxies(group string) int {
	count := 0
	for _, entries := range r.groups[group] {
		count += len(entries)
	}
	return count
}

// ModifiedProxyCount returns the number of registered proxies with
// unpushed changes.
func (r *Registry) ModifiedProxyCount() int { return len(r.modified) }

// AreProxiesModified reports whether any registered proxy has unpushed
// changes.
func (r *Registry) AreProxiesModified() bool { return len(r.modified) > 0 }

// UpdateRegisteredProxies pushes registered proxies in group (every
// non-transient group when group is ""). With modifiedOnly, proxies
// without unpushed changes are skipped. Each proxy is updated once
// even when registered under several names.
func (r *Registry) UpdateRegisteredProxies(group string, modifiedOnly bool) error {
	var tuples []Tuple
	if group == "" {
		tuples = r.Tuples()
	} else {
		tuples = r.GroupTuples(group)
	}
	seen := make(map[*proxy.Proxy]bool)
	var errs []error
	for _, t := range tuples {
		if seen[t.Proxy] || (modifiedOnly && !r.modified[t.Proxy]) {
			continue
		}
		seen[t.Proxy] = true
		if err := t.Proxy.UpdateVTKObjects(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TriggerStateUpdate pushes the registry's full state through the
// pipeline state. Inside a batch the push is deferred to the end.
func (r *Registry) TriggerStateUpdate() error {
	if r.deferred > 0 {
		r.pendingUpdate = true
		return nil
	}
	return r.pipeline.ValidateState()
}

// Batch runs fn with state updates coalesced into at most one, pushed
// when the outermost batch returns. Batches nest.
func (r *Registry) Batch(fn func() error) error {
	r.deferred++
	err := fn()
	r.deferred--
	if r.deferred > 0 || !r.pendingUpdate {
		return err
	}
	r.pendingUpdate = false
	return errors.Join(err, r.pipeline.ValidateState())
}

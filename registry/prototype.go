// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"strings"

	"github.com/bureau-foundation/proxysync/proxy"
)

// GetPrototypeProxy returns the prototype for group/name, creating and
// memoizing it in "<group>_prototypes" on first request. It returns
// nil when no definition exists.
func (r *Registry) GetPrototypeProxy(group, name string) *proxy.Proxy {
	prototypeGroup := group + PrototypeSuffix
	if p := r.GetProxy(prototypeGroup, name); p != nil {
		return p
	}
	definition := r.definitions.Find(group, name)
	if definition == nil {
		return nil
	}
	p := proxy.New(definition, r.session)
	p.SetPrototype(true)
	if _, err := r.RegisterProxy(prototypeGroup, name, p); err != nil {
		r.logger.Error("registering prototype failed", "group", group, "name", name, "error", err)
		return nil
	}
	return p
}

// ClearPrototypes drops every memoized prototype.
func (r *Registry) ClearPrototypes() {
	_, _ = r.unregister(r.match(func(t Tuple) bool {
		return strings.HasSuffix(t.Group, PrototypeSuffix)
	}))
}

// RemovePrototype drops the memoized prototype for group/name. It runs
// automatically whenever that definition changes.
func (r *Registry) RemovePrototype(group, name string) {
	prototypeGroup := group + PrototypeSuffix
	_, _ = r.unregister(r.match(func(t Tuple) bool {
		return t.Group == prototypeGroup && t.Name == name
	}))
}

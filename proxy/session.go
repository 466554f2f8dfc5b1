// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import "github.com/bureau-foundation/proxysync/message"

// RemoteObject is anything addressable by global id in a session:
// proxies, selection models, the pipeline state, the collaboration
// manager.
type RemoteObject interface {
	GlobalID() message.ID
	Location() message.Location
	// FullState returns a fresh copy of the object's complete state.
	FullState() *message.Message
	// LoadState applies state to the object without pushing it.
	LoadState(state *message.Message, locator Locator) error
}

// Session is the object arena and transport a proxy lives in.
type Session interface {
	// NextGlobalID allocates an id unique across every client of the
	// session.
	NextGlobalID() message.ID

	// RegisterRemoteObject makes object resolvable by its global id.
	RegisterRemoteObject(object RemoteObject)

	// UnregisterRemoteObject forgets id without notifying the server.
	UnregisterRemoteObject(id message.ID)

	// RemoteObject returns the live object for id, or nil.
	RemoteObject(id message.ID) RemoteObject

	// Retain and Release count handles to id. When the count returns
	// to zero the object is destroyed: removed from the arena and
	// deleted on the server.
	Retain(id message.ID)
	Release(id message.ID)

	// Pin keeps id alive until unpin is called. A Release that drops
	// the count to zero while id is pinned destroys the object at
	// unpin instead. Pinning alone never destroys anything.
	Pin(id message.ID) (unpin func())

	// PushState sends state to the server, blocking until the
	// transport acknowledges it.
	PushState(state *message.Message) error

	// PullState fetches the server's copy of the state for id.
	PullState(id message.ID) (*message.Message, error)
}

// Locator resolves global ids to live proxies, creating them when
// possible. It returns nil when the id cannot be resolved right now.
type Locator interface {
	LocateProxy(id message.ID) *Proxy
}

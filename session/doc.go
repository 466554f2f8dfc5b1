// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session provides the explicit session context every client
// component is constructed against.
//
// A [Session] is created with [Create], which opens the connection
// with a hello exchange, and ended with [Session.Shutdown]. In
// between it is the arena of remote objects: it allocates global ids
// in chunks reserved from the server, maps ids to live objects, and
// counts owning handles. Releasing the last handle destroys the
// object locally and on the server. Pinning an id (the undo stack
// does this for everything a set references) defers that destruction
// until the pin is dropped. Reserved singleton ids are never
// destroyed.
//
// Pushes and pulls are synchronous round trips. Every successful push
// is reported to the [StateRecorder], if one is set, with the state
// the server held before; the undo builder records sets this way.
//
// States pushed by other clients arrive as notifications. They are
// applied to the live object with the same id (nothing is created for
// unknown ids) and then handed to subscribers. Notifications are only
// processed when the owner calls [Session.ProcessPending],
// [Session.WaitNotification] or [Session.Run], so all object mutation
// stays on the goroutine that owns the session.
//
// A Session is not safe for concurrent use.
package session

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package undo implements transactional undo and redo over state
// differences.
//
// An [Element] is one reversible step. The stock element is
// [StateChange], which records an object's state before and after a
// push; undoing it loads the before state, redoing it loads the after
// state, and either way the result is pushed so other clients follow.
// A [Set] groups elements under a label.
//
// The [Stack] keeps a bounded linear history. Push clears the redo
// stack. Before a set is applied, every remote object it references is
// retained in the session and released afterwards, so objects that an
// element unregisters and a later element needs again are not
// destroyed in between. A failed apply is reported to the caller;
// steps already applied are not rolled back.
//
// A [Builder] turns session pushes into sets: between Begin and the
// matching End, every state pushed through the session is recorded as
// a StateChange. Pushes made while the stack itself is applying a set
// are never recorded.
package undo

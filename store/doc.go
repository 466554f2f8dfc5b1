// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store holds the state server's object states.
//
// A [Store] maps global ids to encoded state messages and keeps the
// id allocation high-water mark, so a restarted server never hands
// out an id it already allocated. [Memory] is used by tests and by
// the builtin in-process server; [Badger] persists to a BadgerDB
// directory for long-running servers.
package store

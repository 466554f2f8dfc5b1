// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool holds the per-session proxy pools that live beside the
// pipeline in the registry: the export depot and the temporal cache.
//
// Both register their proxies through the ordinary registry machinery,
// so observers, modified tracking and id assignment behave as for any
// other proxy. What they add is a lookup key encoded in the
// registration name.
//
// The [Depot] keeps one writer proxy per (definition group, format,
// input) under [WritersGroup], named "<group>|<format>|<input id>",
// one screenshot options proxy per (group, format) under
// [ScreenshotsGroup], and a single global options proxy under
// [GlobalOptionsGroup]. Export groups are shared with collaborators and
// saved with the session.
//
// The [Temporal] pool snapshots a source proxy at a time value and keeps
// the snapshot registered under [registry.TemporalCacheGroup], named
// "<source id>@<time>". The group is transient: snapshots are never
// written to state documents nor listed in the pipeline state. The pool
// is bounded; the least recently used snapshot is unregistered first.
package pool

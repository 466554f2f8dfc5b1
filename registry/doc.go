// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the proxy registry: the session's index
// of (group, name, proxy) registration tuples.
//
// A proxy may be registered under several tuples at once. Removing
// one tuple leaves the others, and the proxy stays alive in the
// session while any tuple or other handle retains it.
//
// The registry tracks which proxies have unpushed changes through
// observers attached at registration, generates collision-free names
// ([Registry.GetUniqueProxyName]), memoizes prototypes in synthetic
// "<group>_prototypes" groups, holds named links and selection models,
// and serializes everything two ways:
//
//   - [Registry.SaveXMLState] / [Registry.LoadXMLState] write and read
//     the persisted document.
//   - [Registry.GetFullState] / [Registry.LoadState] produce and
//     reconcile against a state message for the wire. LoadState
//     computes the difference between the registered tuples and the
//     tuples the message implies, so live proxies and their observers
//     survive a resynchronization.
//
// The [PipelineState] presents the whole registry as one remote object
// at [message.RegistryID]. Every registration change triggers a state
// update, which pushes the registry's full state through the pipeline
// state unless state update notification is disabled.
//
// Groups ending in [PrototypeSuffix], the [SettingsGroup] and the
// [TemporalCacheGroup] are transient: they are never persisted and
// never appear in the full state or in "all proxies" enumerations.
//
// A Registry is not safe for concurrent use; it belongs to its
// session's thread of control. Notifications are delivered
// synchronously in the order operations were issued.
package registry

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package locator turns global ids into live proxies.
//
// A [Locator] caches one proxy per id and delegates misses to a
// [Resolver]. Three resolvers are provided:
//
//   - [XMLTreeResolver] finds <Proxy id="..."> elements under a
//     document root, for loading saved documents.
//   - [CachedXMLResolver] holds elements registered explicitly by id,
//     for replaying captured snapshots.
//   - [MessageResolver] reuses the session's live object for the id
//     when there is one, and otherwise pulls the id's state message
//     from a [StateLocator] chain or the server.
//
// Resolution is idempotent: a locator never constructs a second proxy
// for an id it has already resolved, and the message resolver never
// constructs one for an id the session already knows. Repeated partial
// pulls therefore converge without duplicates.
//
// A missing id is not an error; LocateProxy returns nil. An id whose
// state names a type that cannot be instantiated is
// [ErrUnresolvableType]: it is logged, and recorded so the load that
// asked for it can fail through [Locator.Err].
package locator

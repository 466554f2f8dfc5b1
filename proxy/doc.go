// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy is the unit of shared state: a [Proxy] is a
// client-side handle for an object that may have live instances on
// the client, the data server and the render server.
//
// A proxy is created from a [Definition] (its XML group, XML name,
// label, class names, location and property shapes with defaults).
// Definitions come from a [DefinitionManager], which loads the
// ServerManagerConfiguration XML format and also holds custom
// definitions added at runtime. Changing a definition notifies
// subscribers so memoized prototypes can be dropped.
//
// Setting a property marks it modified and fires [PropertyModified].
// [Proxy.UpdateVTKObjects] pushes the full state through the
// [Session] and fires [Updated]. [Proxy.LoadState] applies a state
// message received from elsewhere and fires [StateChanged]. The
// registry observes these four event kinds to track dirty proxies
// without polling.
//
// Proxies address each other by global id only. Property values of
// kind proxy hold ids; when a state is loaded the [Locator] is asked
// to make sure every referenced id resolves to a live proxy.
//
// A prototype is a proxy whose location is [message.LocationNone]: it
// never gets a global id and is only used as a template for property
// shapes.
//
// Proxies are not safe for concurrent use. A session owns its proxies
// and drives them from one goroutine.
package proxy

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for proxysync
// packages.
//
// [Context] returns a context bounded by a timeout and cancelled when
// the test completes, so a hung round trip fails the test instead of
// the whole run.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timer
// pattern for notification and done channels, so individual tests do
// not carry their own time.After calls. A zero timeout means
// [DefaultTimeout].
// [RequireEventually] drives a step function until a condition holds;
// tests use it to pump session notifications until a peer has caught
// up.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as user labels that must differ between
// sessions sharing one server.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no proxysync-internal dependencies.
package testutil

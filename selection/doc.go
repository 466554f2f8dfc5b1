// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package selection implements selection models: named cursors over
// the proxies a client currently has selected. A model is a remote
// object with its own global id, so one client's selection can be
// pulled and followed by the others.
package selection

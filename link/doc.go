// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package link keeps properties of different proxies in step.
//
// A link has input and output participants. A change to an input
// property is copied onto every output participant; outputs never
// propagate back. A [PropertyLink] ties single named properties
// together. A [ProxyLink] ties every property of its proxies, minus
// an exception list.
//
// Links are registered with the registry by name and persisted both
// in the pipeline state (as [message.LinkRecord] extensions) and in
// the <Links> block of saved documents.
package link

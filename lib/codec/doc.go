// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration for
// state messages, transport envelopes, and stored server state.
//
// Every byte that crosses a process boundary in proxysync is CBOR
// encoded with Core Deterministic Encoding (RFC 8949 §4.2). The same
// logical message always produces the same bytes, which is what makes
// "re-serializing a freshly decoded message is byte-identical" a
// property the rest of the module can rely on: the server compares
// pushes by [Digest], and tests compare messages with bytes.Equal.
//
// Persisted session documents are XML (see package xmlstate); CBOR is
// used only for the wire and for the server's state store.
//
// [Digest] hashes an encoded value with BLAKE3. Digests are only ever
// compared for equality within one process lifetime or one store, so
// the algorithm may change without a migration.
//
// This package depends on no other proxysync packages.
package codec

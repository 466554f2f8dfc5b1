// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress provides the compression algorithms used for
// persisted session documents and transport frames.
//
// A [Tag] names the algorithm. [Seal] produces a self-describing
// blob (one tag byte, the uvarint uncompressed length, then the
// payload) and [Open] reverses it, so readers never need to know in
// advance how a blob was written. Incompressible input is sealed
// with [None] rather than failing.
//
// LZ4 is used for transport frames, where latency matters more than
// ratio. Zstd is used for session documents written to disk, which
// are XML and compress well.
package compress

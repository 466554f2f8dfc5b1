// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package message defines the state message: the structured, versioned
// document used for every wire transfer between clients and servers
// and as the in-memory representation of any remote object's state.
//
// A [Message] has scalar header fields (global id, location bitmask,
// the client/server class-name pair, the XML group/name of the proxy
// definition), an ordered list of typed [Property] values, and an
// ordered list of named [Extension] records. Extension bodies are kept
// as raw CBOR so records of a kind the reader does not know about are
// carried through unchanged: consumers ask for the records they
// understand with [Records] and ignore the rest.
//
// Messages are encoded with lib/codec's deterministic CBOR mode, so
// decoding and re-encoding a message reproduces the original bytes.
//
// Global ids 1 through [ReservedMaxID] are reserved for singleton
// objects: [RegistryID] is the pipeline state (the whole proxy
// registry seen as one object) and [CollaborationID] is the
// collaboration manager.
package message

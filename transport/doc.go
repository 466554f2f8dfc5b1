// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries state messages between client sessions
// and the state server.
//
// Every exchange is an [Envelope] encoded with lib/codec's
// deterministic CBOR and sealed with lib/compress: frames at or above
// a size threshold are LZ4-compressed, smaller ones are sent as-is
// behind the same header, so the reader never needs to know which.
//
// [Frames] is the framing contract, implemented over a gorilla
// WebSocket connection ([NewWebSocketFrames], [DialWebSocket]) and
// over an in-process pipe ([Pipe]) used by the builtin server and by
// tests. [Client] layers request/response correlation on top of any
// Frames: [Client.Call] sends a request and blocks until the reply
// with the same sequence number arrives, while envelopes the server
// sends unprompted are queued on [Client.Notifications] without
// bound so a slow consumer never stalls replies.
//
// Server-side failures travel as a [RemoteError] in the reply and are
// returned by Call; callers extract them with errors.As.
package transport

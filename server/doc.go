// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the authoritative state server collaborating
// sessions connect to.
//
// A connection starts with a hello request carrying the user label.
// The reply assigns a client id and a session key, and the server then
// broadcasts the updated roster to everyone else. After that the
// connection may:
//
//   - reserve global id chunks ([Server.ReserveIDs]); ids never repeat
//     across restarts because the high water mark lives in the store
//   - push object states, which are stored and relayed to every other
//     client; a push identical to the stored state is dropped
//   - pull and delete states by id
//   - broadcast collaboration messages to the other clients
//   - set its label or promote a client to master
//
// When the master disconnects, the remaining client with the lowest id
// is promoted. [Server.Handler] serves connections over WebSocket;
// [Server.LocalConn] wires an in-process client for tests and embedded
// use. Counters and gauges are exported through [Metrics].
package server

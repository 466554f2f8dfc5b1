// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collab implements the collaboration manager: a broadcast
// bus over the session's server connection plus the roster of
// connected users.
//
// [Manager.SendToOtherClients] delivers a state message to every
// other client; the server never echoes it back to the sender. The
// roster (user ids, labels and the master) is owned by the server,
// which pushes it whenever it changes; [Manager.UpdateUserInformation]
// pulls it explicitly.
//
// The master role is advisory. Any client may promote any other, two
// concurrent promotions are resolved by whichever the server applies
// last, and nothing stops a non-master from pushing state. It exists
// so applications can show who is presenting.
//
// Camera following is independent of mastership: [Manager.FollowUser]
// chooses whose camera updates surface as [CameraChanged] events.
// When the master follows someone, every client is told to follow
// the same user.
//
// The manager is itself a remote object at
// [message.CollaborationID]; its state is the roster.
package collab

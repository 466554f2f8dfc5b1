// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/proxysync/lib/codec"
	"github.com/bureau-foundation/proxysync/lib/compress"
	"github.com/bureau-foundation/proxysync/message"
)

// Op is the operation an envelope carries. Values are part of the
// wire format.
type Op uint8

const (
	// OpHello opens a session. Request: Label. Reply: ClientID,
	// SessionKey, Roster, Master.
	OpHello Op = 1

	// OpReserveIDs allocates Count global ids. Reply: ID is the first
	// id of the range.
	OpReserveIDs Op = 2

	// OpPush stores State and forwards it to the other clients as an
	// OpNotify.
	OpPush Op = 3

	// OpPull fetches the state of ID. Reply: State, nil when the
	// server holds none.
	OpPull Op = 4

	// OpDelete destroys the server-side object ID.
	OpDelete Op = 5

	// OpBroadcast forwards State to every other client as an
	// OpCollaboration notification.
	OpBroadcast Op = 6

	// OpRoster returns the connected clients. The server also sends
	// it unprompted whenever the roster or the master changes.
	OpRoster Op = 7

	// OpSetLabel renames ClientID (zero means the sender) to Label.
	OpSetLabel Op = 8

	// OpPromote makes ClientID the master.
	OpPromote Op = 9

	// OpNotify is a state pushed by another client.
	OpNotify Op = 10

	// OpCollaboration is a message broadcast by another client.
	OpCollaboration Op = 11
)

func (op Op) String() string {
	switch op {
	case OpHello:
		return "hello"
	case OpReserveIDs:
		return "reserve-ids"
	case OpPush:
		return "push"
	case OpPull:
		return "pull"
	case OpDelete:
		return "delete"
	case OpBroadcast:
		return "broadcast"
	case OpRoster:
		return "roster"
	case OpSetLabel:
		return "set-label"
	case OpPromote:
		return "promote"
	case OpNotify:
		return "notify"
	case OpCollaboration:
		return "collaboration"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Envelope is one frame. Which fields are meaningful depends on Op.
type Envelope struct {
	Op Op `cbor:"1,keyasint"`

	// Seq correlates a reply with its request. Notifications have
	// Seq zero.
	Seq   uint64 `cbor:"2,keyasint,omitempty"`
	Reply bool   `cbor:"3,keyasint,omitempty"`

	// ClientID is the subject of the operation, or the sender of a
	// notification.
	ClientID uint32     `cbor:"4,keyasint,omitempty"`
	ID       message.ID `cbor:"5,keyasint,omitempty"`
	Count    uint32     `cbor:"6,keyasint,omitempty"`
	Label    string     `cbor:"7,keyasint,omitempty"`

	State *message.Message `cbor:"8,keyasint,omitempty"`

	Roster     []message.UserRecord `cbor:"9,keyasint,omitempty"`
	Master     uint32               `cbor:"10,keyasint,omitempty"`
	SessionKey string               `cbor:"11,keyasint,omitempty"`

	Error *RemoteError `cbor:"12,keyasint,omitempty"`
}

// RemoteError is a failure reported by the server. Callers can use
// errors.As to extract it:
//
//	var remote *RemoteError
//	if errors.As(err, &remote) && remote.Code == CodeNotFound { ... }
type RemoteError struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server: %s: %s", e.Code, e.Message)
}

// Error codes.
const (
	CodeBadRequest    = "bad_request"
	CodeUnknownOp     = "unknown_op"
	CodeUnknownClient = "unknown_client"
	CodeNotHello      = "not_hello"
	CodeInternal      = "internal"
)

// IsRemoteError reports whether err is a *RemoteError with code.
func IsRemoteError(err error, code string) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code == code
	}
	return false
}

// EncodeFrame encodes env and seals it. Frames of at least threshold
// bytes are LZ4-compressed; a negative threshold disables compression.
func EncodeFrame(env *Envelope, threshold int) ([]byte, error) {
	data, err := codec.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", env.Op, err)
	}
	tag := compress.None
	if threshold >= 0 && len(data) >= threshold {
		tag = compress.LZ4
	}
	sealed, _, err := compress.Seal(data, tag)
	if err != nil {
		return nil, fmt.Errorf("sealing %s envelope: %w", env.Op, err)
	}
	return sealed, nil
}

// DecodeFrame reverses [EncodeFrame].
func DecodeFrame(frame []byte) (*Envelope, error) {
	data, err := compress.Open(frame)
	if err != nil {
		return nil, fmt.Errorf("opening frame: %w", err)
	}
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

// Extension names. Readers must skip names they do not recognize.
const (
	// ExtensionRegisteredProxy carries one [RegisteredProxy] per
	// registry tuple in a pipeline state.
	ExtensionRegisteredProxy = "registered_proxy"

	// ExtensionLink carries one [LinkRecord] per registered link.
	ExtensionLink = "registered_link"

	// ExtensionSelectionModel carries one [SelectionModelRecord] per
	// registered selection model.
	ExtensionSelectionModel = "registered_selection_model"

	// ExtensionSelection carries the [SelectionRecord] of a selection
	// model's own state.
	ExtensionSelection = "selection"

	// ExtensionUser carries one [UserRecord] per collaboration
	// participant.
	ExtensionUser = "user"

	// ExtensionCollaboration carries the [CollaborationRecord] header
	// of collaboration state and notifications.
	ExtensionCollaboration = "collaboration"
)

// RegisteredProxy is one (group, name, proxy) registry tuple.
type RegisteredProxy struct {
	Group    string `cbor:"1,keyasint"`
	Name     string `cbor:"2,keyasint"`
	GlobalID ID     `cbor:"3,keyasint"`
}

// LinkDirection is the role of a proxy in a link.
type LinkDirection uint8

const (
	LinkInput  LinkDirection = 1
	LinkOutput LinkDirection = 2
)

func (d LinkDirection) String() string {
	switch d {
	case LinkInput:
		return "input"
	case LinkOutput:
		return "output"
	default:
		return "none"
	}
}

// LinkEntry is one participant of a link. Property is empty for
// proxy links, which cover every property.
type LinkEntry struct {
	GlobalID  ID            `cbor:"1,keyasint"`
	Property  string        `cbor:"2,keyasint,omitempty"`
	Direction LinkDirection `cbor:"3,keyasint"`
}

// LinkRecord is the full state of one named link.
type LinkRecord struct {
	Name    string      `cbor:"1,keyasint"`
	Kind    string      `cbor:"2,keyasint"`
	Entries []LinkEntry `cbor:"3,keyasint,omitempty"`
	// Exceptions lists properties a proxy link does not propagate.
	Exceptions []string `cbor:"4,keyasint,omitempty"`
}

// SelectionModelRecord names a registered selection model.
type SelectionModelRecord struct {
	Name     string `cbor:"1,keyasint"`
	GlobalID ID     `cbor:"2,keyasint"`
}

// SelectionRecord is the state of a selection model.
type SelectionRecord struct {
	Current  ID   `cbor:"1,keyasint,omitempty"`
	Selected []ID `cbor:"2,keyasint,omitempty"`
}

// UserRecord describes one connected client.
type UserRecord struct {
	ClientID uint32 `cbor:"1,keyasint"`
	Name     string `cbor:"2,keyasint,omitempty"`
}

// CollaborationRecord is the header of a collaboration message. Which
// fields are meaningful depends on Event.
type CollaborationRecord struct {
	Event        string `cbor:"1,keyasint"`
	Sender       uint32 `cbor:"2,keyasint,omitempty"`
	Master       uint32 `cbor:"3,keyasint,omitempty"`
	FollowCamera uint32 `cbor:"4,keyasint,omitempty"`
	// Payload is owned by the application layer.
	Payload []byte `cbor:"5,keyasint,omitempty"`
}

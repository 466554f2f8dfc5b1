// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// ClientClass identifies selection model states on the wire.
const ClientClass = "SelectionModel"

// Model is a named selection.
type Model struct {
	name    string
	session proxy.Session
	id      message.ID

	current  message.ID
	selected []message.ID

	listeners []func(*Model)
}

// New returns an empty model bound to session.
func New(name string, session proxy.Session) *Model {
	return &Model{name: name, session: session}
}

// Name returns the registration name.
func (m *Model) Name() string { return m.name }

// GlobalID returns the model's id, or NullID before EnsureGlobalID.
func (m *Model) GlobalID() message.ID { return m.id }

// Location reports that selection models live on the client only.
func (m *Model) Location() message.Location { return message.Client }

// EnsureGlobalID assigns an id and registers the model with its
// session.
func (m *Model) EnsureGlobalID() message.ID {
	if m.id == message.NullID {
		if m.id = m.session.NextGlobalID(); m.id != message.NullID {
			m.session.RegisterRemoteObject(m)
		}
	}
	return m.id
}

// SetGlobalID binds the model to an id allocated by another client.
func (m *Model) SetGlobalID(id message.ID) error {
	if m.id != message.NullID {
		return fmt.Errorf("selection model %s already has global id %d", m.name, m.id)
	}
	m.id = id
	m.session.RegisterRemoteObject(m)
	return nil
}

// Current returns the current proxy id, or NullID.
func (m *Model) Current() message.ID { return m.current }

// Selected returns the selected proxy ids in selection order.
func (m *Model) Selected() []message.ID { return slices.Clone(m.selected) }

// IsSelected reports whether id is part of the selection.
func (m *Model) IsSelected(id message.ID) bool { return slices.Contains(m.selected, id) }

// SetCurrent makes id current and pushes the model.
func (m *Model) SetCurrent(id message.ID) error {
	if id == m.current {
		return nil
	}
	m.current = id
	return m.changed()
}

// Select replaces the selection and pushes the model. Duplicates are
// dropped.
func (m *Model) Select(ids ...message.ID) error {
	var selected []message.ID
	for _, id := range ids {
		if id != message.NullID && !slices.Contains(selected, id) {
			selected = append(selected, id)
		}
	}
	if slices.Equal(selected, m.selected) {
		return nil
	}
	m.selected = selected
	return m.changed()
}

// Clear empties the selection and the current id.
func (m *Model) Clear() error {
	if m.current == message.NullID && len(m.selected) == 0 {
		return nil
	}
	m.current, m.selected = message.NullID, nil
	return m.changed()
}

// OnChange registers fn to run after every change, local or loaded.
func (m *Model) OnChange(fn func(*Model)) {
	m.listeners = append(m.listeners, fn)
}

func (m *Model) changed() error {
	m.notify()
	m.EnsureGlobalID()
	if err := m.session.PushState(m.FullState()); err != nil {
		return fmt.Errorf("pushing selection model %s: %w", m.name, err)
	}
	return nil
}

func (m *Model) notify() {
	for _, fn := range slices.Clone(m.listeners) {
		fn(m)
	}
}

// FullState returns the model's state.
func (m *Model) FullState() *message.Message {
	state := &message.Message{
		GlobalID:    m.id,
		Location:    message.Client,
		ClientClass: ClientClass,
		XMLName:     m.name,
	}
	// A SelectionRecord always encodes.
	_ = message.Append(state, message.ExtensionSelection, message.SelectionRecord{
		Current:  m.current,
		Selected: slices.Clone(m.selected),
	})
	return state
}

// LoadState applies a state pulled from the server without pushing.
// Selected proxies are resolved through locator when one is given so
// they exist locally.
func (m *Model) LoadState(state *message.Message, locator proxy.Locator) error {
	if state == nil || state.ClientClass != ClientClass {
		return errors.New("selection model LoadState: not a selection state")
	}
	records, err := message.Records[message.SelectionRecord](state, message.ExtensionSelection)
	if err != nil {
		return fmt.Errorf("selection model %s: %w", m.name, err)
	}
	var record message.SelectionRecord
	if len(records) > 0 {
		record = records[0]
	}
	if locator != nil {
		for _, id := range record.Selected {
			locator.LocateProxy(id)
		}
	}
	if record.Current == m.current && slices.Equal(record.Selected, m.selected) {
		return nil
	}
	m.current, m.selected = record.Current, record.Selected
	m.notify()
	return nil
}

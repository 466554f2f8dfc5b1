// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package locator

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/proxysync/message"
)

// Remote fetches the server's copy of an object's state. The session
// implements it.
type Remote interface {
	PullState(id message.ID) (*message.Message, error)
}

// StateLocator holds state messages by global id. Lookups that miss
// fall through to the parent, so a short-lived locator (one undo
// element, one pull) can layer over a long-lived one.
type StateLocator struct {
	parent *StateLocator
	states map[message.ID]*message.Message
}

// NewStateLocator returns an empty locator chained to parent, which
// may be nil.
func NewStateLocator(parent *StateLocator) *StateLocator {
	return &StateLocator{parent: parent, states: make(map[message.ID]*message.Message)}
}

// Parent returns the next locator in the chain.
func (s *StateLocator) Parent() *StateLocator { return s.parent }

// RegisterState stores a copy of state under its global id.
func (s *StateLocator) RegisterState(state *message.Message) error {
	if state == nil || state.GlobalID == message.NullID {
		return errors.New("state locator: state without a global id")
	}
	s.states[state.GlobalID] = state.Clone()
	return nil
}

// UnregisterState forgets id in s and, when recursive, in every parent.
func (s *StateLocator) UnregisterState(id message.ID, recursive bool) {
	delete(s.states, id)
	if recursive && s.parent != nil {
		s.parent.UnregisterState(id, true)
	}
}

// FindState returns a copy of the state for id from s or its parents.
func (s *StateLocator) FindState(id message.ID) *message.Message {
	for locator := s; locator != nil; locator = locator.parent {
		if state, ok := locator.states[id]; ok {
			return state.Clone()
		}
	}
	return nil
}

// IsStateLocal reports whether s itself, ignoring parents, holds id.
func (s *StateLocator) IsStateLocal(id message.ID) bool {
	_, ok := s.states[id]
	return ok
}

// IDs returns the ids held by s itself in ascending order.
func (s *StateLocator) IDs() []message.ID {
	return slices.Sorted(maps.Keys(s.states))
}

// UpdateFromRemote replaces the states held by s itself with the
// server's current copies. States the server no longer has are
// dropped.
func (s *StateLocator) UpdateFromRemote(remote Remote) error {
	var errs []error
	for _, id := range s.IDs() {
		state, err := remote.PullState(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("updating state %d: %w", id, err))
			continue
		}
		if state == nil {
			delete(s.states, id)
			continue
		}
		s.states[id] = state.Clone()
	}
	return errors.Join(errs...)
}

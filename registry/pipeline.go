// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"

	"github.com/bureau-foundation/proxysync/lib/codec"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// PipelineState is the registry seen as one remote object at
// [message.RegistryID].
type PipelineState struct {
	registry *Registry
	enabled  bool

	// last is the digest of the most recently pushed or loaded state.
	last    codec.StateDigest
	hasLast bool
}

// GlobalID returns [message.RegistryID].
func (s *PipelineState) GlobalID() message.ID { return message.RegistryID }

// Location reports where the pipeline state lives.
func (s *PipelineState) Location() message.Location { return message.DataServer }

// FullState returns the registry's full state.
func (s *PipelineState) FullState() *message.Message { return s.registry.GetFullState() }

// LoadState applies a state received from the server. Outbound state
// updates are suppressed while it is applied.
func (s *PipelineState) LoadState(state *message.Message, loc proxy.Locator) error {
	return s.Load(state, loc, true)
}

// Load reconciles the registry with state. When fromRemote is set the
// state came from the network: state update notification is disabled
// for the duration so the change is not echoed back.
func (s *PipelineState) Load(state *message.Message, loc proxy.Locator, fromRemote bool) error {
	if fromRemote && s.enabled {
		s.enabled = false
		defer func() { s.enabled = true }()
	}
	err := s.registry.LoadState(state, loc)
	if fromRemote {
		s.remember(s.registry.GetFullState())
	}
	return err
}

// ValidateState pushes the registry's full state unless state update
// notification is disabled or the state equals the last one pushed.
func (s *PipelineState) ValidateState() error {
	if !s.enabled {
		return nil
	}
	state := s.registry.GetFullState()
	digest, err := state.Digest()
	if err != nil {
		return fmt.Errorf("digesting pipeline state: %w", err)
	}
	if s.hasLast && digest == s.last {
		return nil
	}
	if err := s.registry.session.PushState(state); err != nil {
		return fmt.Errorf("pushing pipeline state: %w", err)
	}
	s.last, s.hasLast = digest, true
	return nil
}

func (s *PipelineState) remember(state *message.Message) {
	if digest, err := state.Digest(); err == nil {
		s.last, s.hasLast = digest, true
	}
}

// EnableStateUpdateNotification turns the push side back on.
func (s *PipelineState) EnableStateUpdateNotification() { s.enabled = true }

// DisableStateUpdateNotification stops ValidateState from pushing,
// for bulk operations that must not echo.
func (s *PipelineState) DisableStateUpdateNotification() { s.enabled = false }

// IsStateUpdateNotificationEnabled reports whether state updates push.
func (s *PipelineState) IsStateUpdateNotificationEnabled() bool { return s.enabled }

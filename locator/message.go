// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package locator

import (
	"fmt"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// MessageResolver resolves ids from state messages.
type MessageResolver struct {
	session proxy.Session
	factory Factory
	states  *StateLocator

	// pull allows falling back to the server when no state locator in
	// the chain holds the id.
	pull bool
}

// NewMessageResolver returns a resolver that consults states (which
// may be nil) and then the server.
func NewMessageResolver(session proxy.Session, factory Factory, states *StateLocator) *MessageResolver {
	return &MessageResolver{session: session, factory: factory, states: states, pull: true}
}

// SetPullFromServer controls whether a miss in the state locator
// chain pulls from the server.
func (r *MessageResolver) SetPullFromServer(pull bool) { r.pull = pull }

func (r *MessageResolver) NewProxy(id message.ID, locator *Locator) (*proxy.Proxy, error) {
	if object := r.session.RemoteObject(id); object != nil {
		if live, ok := object.(*proxy.Proxy); ok {
			return live, nil
		}
		return nil, nil
	}

	var state *message.Message
	if r.states != nil {
		state = r.states.FindState(id)
	}
	if state == nil && r.pull {
		pulled, err := r.session.PullState(id)
		if err != nil {
			return nil, fmt.Errorf("pulling state %d: %w", id, err)
		}
		state = pulled
	}
	if state == nil {
		return nil, nil
	}

	if state.XMLGroup == "" || state.XMLName == "" {
		return nil, fmt.Errorf("%w: state %d has no definition", ErrUnresolvableType, id)
	}
	p, err := r.factory.NewProxy(state.XMLGroup, state.XMLName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrUnresolvableType, state.XMLGroup, state.XMLName, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no definition for %s/%s", ErrUnresolvableType, state.XMLGroup, state.XMLName)
	}
	if state.Location != message.LocationNone {
		p.SetLocation(state.Location)
	}
	if err := p.SetGlobalID(id); err != nil {
		return nil, err
	}
	locator.Bind(id, p)
	if err := p.LoadState(state, locator); err != nil {
		return nil, fmt.Errorf("loading state %d: %w", id, err)
	}
	return p, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package undo

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/proxysync/locator"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

// Context is what an element applies itself against.
type Context struct {
	Session proxy.Session

	// Locator resolves ids from the states recorded by the set being
	// applied, then from the session, so objects destroyed since the
	// set was recorded can be recreated.
	Locator *locator.Locator
}

// Element is one reversible step.
type Element interface {
	Undo(ctx *Context) error
	Redo(ctx *Context) error

	// RemoteObjects returns the ids of every object the element
	// references.
	RemoteObjects() []message.ID
}

// stateCarrier is implemented by elements that hold full states the
// stack should make resolvable while a set is applied.
type stateCarrier interface {
	states(undo bool) []*message.Message
}

// StateChange records one object's state before and after a push.
// Before is nil when the push created the object. Undoing a creation
// destroys the object, or for reserved objects such as the pipeline
// state, which live as long as the session, loads an empty state.
type StateChange struct {
	ID     message.ID
	Before *message.Message
	After  *message.Message
}

func (c *StateChange) Undo(ctx *Context) error {
	if c.Before == nil {
		return c.uncreate(ctx)
	}
	return c.apply(ctx, c.Before)
}
func (c *StateChange) Redo(ctx *Context) error { return c.apply(ctx, c.After) }

func (c *StateChange) RemoteObjects() []message.ID {
	ids := []message.ID{c.ID}
	for _, state := range []*message.Message{c.Before, c.After} {
		if state == nil {
			continue
		}
		for _, property := range state.Properties {
			for _, id := range property.Proxies {
				if id != message.NullID && !slices.Contains(ids, id) {
					ids = append(ids, id)
				}
			}
		}
		records, _ := message.Records[message.RegisteredProxy](state, message.ExtensionRegisteredProxy)
		for _, record := range records {
			if !slices.Contains(ids, record.GlobalID) {
				ids = append(ids, record.GlobalID)
			}
		}
	}
	return ids
}

func (c *StateChange) states(undo bool) []*message.Message {
	state := c.After
	if undo {
		state = c.Before
	}
	if state == nil {
		return nil
	}
	return []*message.Message{state}
}

// uncreate reverts the push that created the object.
func (c *StateChange) uncreate(ctx *Context) error {
	if c.ID.IsReserved() {
		if c.After == nil {
			return nil
		}
		return c.apply(ctx, &message.Message{
			GlobalID:    c.ID,
			Location:    c.After.Location,
			ClientClass: c.After.ClientClass,
			ServerClass: c.After.ServerClass,
		})
	}
	if ctx.Session.RemoteObject(c.ID) == nil {
		return nil
	}
	// Taking and dropping a handle destroys the object once nothing
	// else owns it. The stack pins it for the rest of the apply, so
	// destruction happens when the set is done.
	ctx.Session.Retain(c.ID)
	ctx.Session.Release(c.ID)
	return nil
}

func (c *StateChange) apply(ctx *Context, state *message.Message) error {
	if state == nil {
		return nil
	}
	object := ctx.Session.RemoteObject(c.ID)
	if object == nil {
		// Recreating through the locator also loads the state.
		if ctx.Locator.LocateProxy(c.ID) == nil {
			return fmt.Errorf("object %d cannot be recreated: %w", c.ID, errors.Join(ErrUnrecoverable, ctx.Locator.Err()))
		}
		object = ctx.Session.RemoteObject(c.ID)
		if object == nil {
			return fmt.Errorf("object %d: %w", c.ID, ErrUnrecoverable)
		}
	} else if err := object.LoadState(state.Clone(), ctx.Locator); err != nil {
		return fmt.Errorf("loading state of object %d: %w", c.ID, err)
	}
	if err := ctx.Session.PushState(object.FullState()); err != nil {
		return fmt.Errorf("pushing state of object %d: %w", c.ID, err)
	}
	return nil
}

// ErrUnrecoverable is returned when an element refers to an object
// that no longer exists and cannot be recreated from recorded states.
var ErrUnrecoverable = errors.New("object cannot be recovered")

// Set is an ordered group of elements.
type Set struct {
	elements []Element
}

// Add appends e.
func (s *Set) Add(e Element) { s.elements = append(s.elements, e) }

// Len returns the number of elements.
func (s *Set) Len() int { return len(s.elements) }

// Elements returns the elements in recording order.
func (s *Set) Elements() []Element { return slices.Clone(s.elements) }

// Undo applies the elements' undo steps in reverse order, stopping at
// the first failure.
func (s *Set) Undo(ctx *Context) error {
	for i := len(s.elements) - 1; i >= 0; i-- {
		if err := s.elements[i].Undo(ctx); err != nil {
			return fmt.Errorf("undo step %d of %d: %w", len(s.elements)-i, len(s.elements), err)
		}
	}
	return nil
}

// Redo applies the elements' redo steps in order, stopping at the
// first failure.
func (s *Set) Redo(ctx *Context) error {
	for i, element := range s.elements {
		if err := element.Redo(ctx); err != nil {
			return fmt.Errorf("redo step %d of %d: %w", i+1, len(s.elements), err)
		}
	}
	return nil
}

// RemoteObjects returns every id referenced by any element, without
// duplicates.
func (s *Set) RemoteObjects() []message.ID {
	var ids []message.ID
	for _, element := range s.elements {
		for _, id := range element.RemoteObjects() {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// stateChange returns the recorded change for id, if any.
func (s *Set) stateChange(id message.ID) *StateChange {
	for _, element := range s.elements {
		if change, ok := element.(*StateChange); ok && change.ID == id {
			return change
		}
	}
	return nil
}

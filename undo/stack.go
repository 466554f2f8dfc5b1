// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package undo

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/proxysync/locator"
	"github.com/bureau-foundation/proxysync/proxy"
)

// DefaultCapacity is the number of sets kept when Config.Capacity is
// zero.
const DefaultCapacity = 10

var (
	// ErrNothingToUndo is returned by Undo on an empty undo stack.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty redo stack.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// EventKind tags an [Event].
type EventKind uint8

const (
	UndoStarted EventKind = iota + 1
	UndoFinished
	RedoStarted
	RedoFinished
	Pushed
	Cleared
)

func (k EventKind) String() string {
	switch k {
	case UndoStarted:
		return "undo-started"
	case UndoFinished:
		return "undo-finished"
	case RedoStarted:
		return "redo-started"
	case RedoFinished:
		return "redo-finished"
	case Pushed:
		return "pushed"
	case Cleared:
		return "cleared"
	default:
		return fmt.Sprintf("undo-event(%d)", uint8(k))
	}
}

// Event reports a stack operation. Err is set on a finished event
// whose apply failed.
type Event struct {
	Kind  EventKind
	Label string
	Err   error
}

// Config holds the parameters of a stack.
type Config struct {
	// Session owns the objects sets refer to. Required.
	Session proxy.Session

	// Factory recreates proxies destroyed since a set was recorded.
	// The registry is the usual factory.
	Factory locator.Factory

	// Capacity bounds the undo history; the oldest set is dropped
	// beyond it. Zero means DefaultCapacity.
	Capacity int

	Logger *slog.Logger
}

type labeledSet struct {
	label string
	set   *Set
}

// Stack is a bounded linear undo history.
type Stack struct {
	session  proxy.Session
	factory  locator.Factory
	capacity int
	logger   *slog.Logger

	undo []labeledSet
	redo []labeledSet

	applying  bool
	listeners []func(Event)
}

// NewStack returns an empty stack.
func NewStack(cfg Config) *Stack {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stack{session: cfg.Session, factory: cfg.Factory, capacity: capacity, logger: logger}
}

// Subscribe registers fn for every stack event.
func (s *Stack) Subscribe(fn func(Event)) { s.listeners = append(s.listeners, fn) }

func (s *Stack) emit(event Event) {
	for _, fn := range slices.Clone(s.listeners) {
		fn(event)
	}
}

// Push appends set under label and clears the redo stack. Empty sets
// are ignored.
func (s *Stack) Push(label string, set *Set) {
	if set == nil || set.Len() == 0 {
		return
	}
	s.redo = nil
	s.undo = append(s.undo, labeledSet{label: label, set: set})
	if excess := len(s.undo) - s.capacity; excess > 0 {
		s.undo = slices.Delete(s.undo, 0, excess)
	}
	s.emit(Event{Kind: Pushed, Label: label})
}

// Undo reverts the most recent set and moves it to the redo stack.
// A failed apply is returned; steps already applied stay applied and
// the set still moves, so Redo can restore the after states.
func (s *Stack) Undo() error {
	if len(s.undo) == 0 {
		return ErrNothingToUndo
	}
	top := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.emit(Event{Kind: UndoStarted, Label: top.label})
	err := s.apply(top.set, true)
	s.redo = append(s.redo, top)
	s.emit(Event{Kind: UndoFinished, Label: top.label, Err: err})
	if err != nil {
		s.logger.Error("undo failed", "label", top.label, "error", err)
		return fmt.Errorf("undoing %q: %w", top.label, err)
	}
	return nil
}

// Redo reapplies the most recently undone set.
func (s *Stack) Redo() error {
	if len(s.redo) == 0 {
		return ErrNothingToRedo
	}
	top := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.emit(Event{Kind: RedoStarted, Label: top.label})
	err := s.apply(top.set, false)
	s.undo = append(s.undo, top)
	s.emit(Event{Kind: RedoFinished, Label: top.label, Err: err})
	if err != nil {
		s.logger.Error("redo failed", "label", top.label, "error", err)
		return fmt.Errorf("redoing %q: %w", top.label, err)
	}
	return nil
}

// apply pins every object the set references, then runs it.
func (s *Stack) apply(set *Set, undo bool) error {
	s.applying = true
	defer func() { s.applying = false }()

	var unpins []func()
	for _, id := range set.RemoteObjects() {
		unpins = append(unpins, s.session.Pin(id))
	}
	defer func() {
		for _, unpin := range unpins {
			unpin()
		}
	}()

	states := locator.NewStateLocator(nil)
	for _, element := range set.elements {
		carrier, ok := element.(stateCarrier)
		if !ok {
			continue
		}
		for _, state := range carrier.states(undo) {
			if err := states.RegisterState(state); err != nil {
				return err
			}
		}
	}
	resolver := locator.NewMessageResolver(s.session, s.factory, states)
	resolver.SetPullFromServer(false)
	loc := locator.New(resolver, s.session, s.logger)
	defer loc.Clear()

	ctx := &Context{Session: s.session, Locator: loc}
	if undo {
		return set.Undo(ctx)
	}
	return set.Redo(ctx)
}

// Applying reports whether an undo or redo is in progress.
func (s *Stack) Applying() bool { return s.applying }

// CanUndo reports whether Undo has a set to apply.
func (s *Stack) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether Redo has a set to apply.
func (s *Stack) CanRedo() bool { return len(s.redo) > 0 }

// UndoLabel returns the label Undo would revert, or "".
func (s *Stack) UndoLabel() string {
	if len(s.undo) == 0 {
		return ""
	}
	return s.undo[len(s.undo)-1].label
}

// RedoLabel returns the label Redo would reapply, or "".
func (s *Stack) RedoLabel() string {
	if len(s.redo) == 0 {
		return ""
	}
	return s.redo[len(s.redo)-1].label
}

// NumberOfUndoSets returns the undo history length.
func (s *Stack) NumberOfUndoSets() int { return len(s.undo) }

// NumberOfRedoSets returns the redo history length.
func (s *Stack) NumberOfRedoSets() int { return len(s.redo) }

// Capacity returns the undo history bound.
func (s *Stack) Capacity() int { return s.capacity }

// Clear empties both stacks.
func (s *Stack) Clear() {
	s.undo, s.redo = nil, nil
	s.emit(Event{Kind: Cleared})
}

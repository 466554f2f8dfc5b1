// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package undo

import (
	"github.com/bureau-foundation/proxysync/message"
)

// Builder records session pushes into sets and pushes each completed
// set onto its stack. Begin and End nest; the set is pushed when the
// outermost End is reached.
type Builder struct {
	stack  *Stack
	depth  int
	label  string
	set    *Set
	ignore bool
}

// NewBuilder returns a builder feeding stack.
func NewBuilder(stack *Stack) *Builder {
	return &Builder{stack: stack}
}

// Begin opens a set. Nested calls keep the outermost label.
func (b *Builder) Begin(label string) {
	if b.depth == 0 {
		b.label = label
		b.set = &Set{}
	}
	b.depth++
}

// End closes the current level. Closing the outermost level pushes
// the set if anything was recorded.
func (b *Builder) End() {
	if b.depth == 0 {
		return
	}
	b.depth--
	if b.depth > 0 {
		return
	}
	set := b.set
	b.set = nil
	b.stack.Push(b.label, set)
}

// SetIgnore suspends recording while ignore is true.
func (b *Builder) SetIgnore(ignore bool) { b.ignore = ignore }

// Recording reports whether pushes are currently recorded.
func (b *Builder) Recording() bool {
	return b.depth > 0 && !b.ignore && !b.stack.Applying()
}

// Add records e in the open set. It is ignored when not recording.
func (b *Builder) Add(e Element) {
	if b.Recording() {
		b.set.Add(e)
	}
}

// StatePushed records a push as a StateChange. Repeated pushes of one
// object within a set keep the first before state and the latest
// after state.
func (b *Builder) StatePushed(before, after *message.Message) {
	if !b.Recording() || after == nil {
		return
	}
	if change := b.set.stateChange(after.GlobalID); change != nil {
		change.After = after.Clone()
		return
	}
	b.set.Add(&StateChange{ID: after.GlobalID, Before: before.Clone(), After: after.Clone()})
}

// StateDestroyed records the destruction of an object whose last
// known state is last. Undoing it recreates the object from last.
func (b *Builder) StateDestroyed(last *message.Message) {
	if !b.Recording() || last == nil {
		return
	}
	if change := b.set.stateChange(last.GlobalID); change != nil {
		change.After = nil
		return
	}
	b.set.Add(&StateChange{ID: last.GlobalID, Before: last.Clone()})
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/bureau-foundation/proxysync/message"
)

// ErrNotFound is returned by Get for an id with no stored state.
var ErrNotFound = errors.New("store: state not found")

// Store holds encoded states. Implementations are safe for concurrent
// use.
type Store interface {
	Get(ctx context.Context, id message.ID) ([]byte, error)
	Put(ctx context.Context, id message.ID, state []byte) error

	// Delete removes id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id message.ID) error

	// IDs returns every stored id in ascending order.
	IDs(ctx context.Context) ([]message.ID, error)

	// HighWater returns the highest id ever allocated, or NullID.
	HighWater(ctx context.Context) (message.ID, error)
	SetHighWater(ctx context.Context, id message.ID) error

	Close() error
}

var _ Store = (*Memory)(nil)

// Memory is an in-process [Store].
type Memory struct {
	mu        sync.RWMutex
	states    map[message.ID][]byte
	highWater message.ID
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{states: make(map[message.ID][]byte)}
}

func (m *Memory) Get(_ context.Context, id message.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(state), nil
}

func (m *Memory) Put(_ context.Context, id message.ID, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = slices.Clone(state)
	return nil
}

func (m *Memory) Delete(_ context.Context, id message.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *Memory) IDs(context.Context) ([]message.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.states)), nil
}

func (m *Memory) HighWater(context.Context) (message.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.highWater, nil
}

func (m *Memory) SetHighWater(_ context.Context, id message.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highWater = id
	return nil
}

func (m *Memory) Close() error { return nil }

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/proxysync/link"
	"github.com/bureau-foundation/proxysync/selection"
)

// RegisterLink adds l under its name, closing any link it replaces.
func (r *Registry) RegisterLink(l link.Link) error {
	if l == nil || l.Name() == "" {
		r.logger.Error("RegisterLink called without a named link")
		return fmt.Errorf("registering link: %w", ErrInvalidArgument)
	}
	if existing, ok := r.links[l.Name()]; ok && existing != l {
		existing.Close()
	}
	r.links[l.Name()] = l
	return r.TriggerStateUpdate()
}

// UnRegisterLink closes and removes the named link.
func (r *Registry) UnRegisterLink(name string) error {
	l, ok := r.links[name]
	if !ok {
		return nil
	}
	l.Close()
	delete(r.links, name)
	return r.TriggerStateUpdate()
}

// UnRegisterAllLinks closes and removes every link.
func (r *Registry) UnRegisterAllLinks() error {
	if len(r.links) == 0 {
		return nil
	}
	for name, l := range r.links {
		l.Close()
		delete(r.links, name)
	}
	return r.TriggerStateUpdate()
}

// GetLink returns the named link, or nil.
func (r *Registry) GetLink(name string) link.Link { return r.links[name] }

// LinkNames returns the registered link names, sorted.
func (r *Registry) LinkNames() []string { return slices.Sorted(maps.Keys(r.links)) }

// RegisterSelectionModel adds model under name, assigning it a global
// id.
func (r *Registry) RegisterSelectionModel(name string, model *selection.Model) error {
	if name == "" || model == nil {
		r.logger.Error("RegisterSelectionModel called without a name or model", "name", name)
		return fmt.Errorf("registering selection model %q: %w", name, ErrInvalidArgument)
	}
	if r.selectionModels[name] == model {
		return nil
	}
	model.EnsureGlobalID()
	r.selectionModels[name] = model
	return r.TriggerStateUpdate()
}

// UnRegisterSelectionModel removes the named model.
func (r *Registry) UnRegisterSelectionModel(name string) error {
	if _, ok := r.selectionModels[name]; !ok {
		return nil
	}
	delete(r.selectionModels, name)
	return r.TriggerStateUpdate()
}

// GetSelectionModel returns the named model, or nil.
func (r *Registry) GetSelectionModel(name string) *selection.Model { return r.selectionModels[name] }

// SelectionModelNames returns the registered model names, sorted.
func (r *Registry) SelectionModelNames() []string {
	return slices.Sorted(maps.Keys(r.selectionModels))
}

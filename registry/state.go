// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/proxysync/link"
	"github.com/bureau-foundation/proxysync/locator"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/selection"
)

// PipelineStateClass is the client class of the registry's full state.
const PipelineStateClass = "PipelineState"

// ErrUnresolvedProxy is returned by LoadState when a tuple in the
// incoming state names an id the locator cannot resolve.
var ErrUnresolvedProxy = errors.New("registered proxy cannot be located")

// GetFullState returns the registry as one state message: a
// registered_proxy record per non-transient tuple with a global id, a
// registered_link record per link and a registered_selection_model
// record per selection model, each in name order.
func (r *Registry) GetFullState() *message.Message {
	state := &message.Message{
		GlobalID:    message.RegistryID,
		Location:    message.DataServer,
		ClientClass: PipelineStateClass,
	}
	for _, t := range r.Tuples() {
		id := t.Proxy.GlobalID()
		if id == message.NullID {
			continue
		}
		r.appendRecord(state, message.ExtensionRegisteredProxy,
			message.RegisteredProxy{Group: t.Group, Name: t.Name, GlobalID: id})
	}
	for _, name := range r.LinkNames() {
		r.appendRecord(state, message.ExtensionLink, r.links[name].State())
	}
	for _, name := range r.SelectionModelNames() {
		r.appendRecord(state, message.ExtensionSelectionModel,
			message.SelectionModelRecord{Name: name, GlobalID: r.selectionModels[name].GlobalID()})
	}
	return state
}

func (r *Registry) appendRecord(state *message.Message, name string, record any) {
	if err := message.Append(state, name, record); err != nil {
		r.logger.Error("encoding pipeline state record failed", "extension", name, "error", err)
	}
}

type tupleKey struct {
	group, name string
	id          message.ID
}

// LoadState reconciles the registry with state. Tuples the state
// implies but the registry lacks are registered, resolving their
// proxies through loc; tuples the registry holds but the state does
// not are unregistered. Tuples present in both are untouched and fire
// nothing. Links and selection models are reconciled by name.
// Extensions of unknown kinds are ignored.
//
// A nil loc resolves ids from the session and the server.
func (r *Registry) LoadState(state *message.Message, loc proxy.Locator) error {
	if state == nil {
		r.logger.Error("LoadState called without a state")
		return fmt.Errorf("loading pipeline state: %w", ErrInvalidArgument)
	}
	if loc == nil {
		messages := r.newMessageLocator()
		defer messages.Clear()
		loc = messages
	}
	proxies, err := message.Records[message.RegisteredProxy](state, message.ExtensionRegisteredProxy)
	if err != nil {
		return fmt.Errorf("loading pipeline state: %w", err)
	}
	links, err := message.Records[message.LinkRecord](state, message.ExtensionLink)
	if err != nil {
		return fmt.Errorf("loading pipeline state: %w", err)
	}
	models, err := message.Records[message.SelectionModelRecord](state, message.ExtensionSelectionModel)
	if err != nil {
		return fmt.Errorf("loading pipeline state: %w", err)
	}

	err = r.Batch(func() error {
		var errs []error
		desired := make(map[tupleKey]bool, len(proxies))
		// Register before unregistering, so a proxy that only changed
		// name is never released in between.
		for _, record := range proxies {
			if IsTransientGroup(record.Group) {
				continue
			}
			desired[tupleKey{record.Group, record.Name, record.GlobalID}] = true
			if r.hasTupleID(record.Group, record.Name, record.GlobalID) {
				continue
			}
			p := loc.LocateProxy(record.GlobalID)
			if p == nil {
				r.logger.Error("pipeline state names an unresolvable proxy",
					"group", record.Group, "name", record.Name, "id", record.GlobalID)
				errs = append(errs, fmt.Errorf("%s/%s (id %d): %w", record.Group, record.Name, record.GlobalID, ErrUnresolvedProxy))
				continue
			}
			if _, err := r.RegisterProxy(record.Group, record.Name, p); err != nil {
				errs = append(errs, err)
			}
		}
		for _, t := range r.Tuples() {
			id := t.Proxy.GlobalID()
			if id == message.NullID || desired[tupleKey{t.Group, t.Name, id}] {
				continue
			}
			if r.removeTuple(t) {
				r.pendingUpdate = true
			}
		}
		errs = append(errs, r.reconcileLinks(links, loc)...)
		errs = append(errs, r.reconcileSelectionModels(models, loc)...)
		return errors.Join(errs...)
	})
	r.notify(Notification{Kind: StateLoaded, Locator: loc})
	if err != nil {
		return fmt.Errorf("loading pipeline state: %w", err)
	}
	return nil
}

func (r *Registry) hasTupleID(group, name string, id message.ID) bool {
	for _, e := range r.groups[group][name] {
		if e.proxy.GlobalID() == id {
			return true
		}
	}
	return false
}

func (r *Registry) newMessageLocator() *locator.Locator {
	return locator.New(locator.NewMessageResolver(r.session, r, nil), r.session, r.logger)
}

func (r *Registry) reconcileLinks(records []message.LinkRecord, loc proxy.Locator) []error {
	wanted := make(map[string]message.LinkRecord, len(records))
	for _, record := range records {
		wanted[record.Name] = record
	}
	for _, name := range slices.Sorted(maps.Keys(r.links)) {
		if _, ok := wanted[name]; !ok {
			r.links[name].Close()
			delete(r.links, name)
			r.pendingUpdate = true
		}
	}
	var errs []error
	for _, record := range records {
		existing := r.links[record.Name]
		if existing != nil && sameLink(existing.State(), record) {
			continue
		}
		restored, err := link.FromRecord(record, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if existing != nil {
			existing.Close()
		}
		r.links[record.Name] = restored
		r.pendingUpdate = true
	}
	return errs
}

func sameLink(a, b message.LinkRecord) bool {
	return a.Name == b.Name && a.Kind == b.Kind &&
		slices.Equal(a.Entries, b.Entries) && slices.Equal(a.Exceptions, b.Exceptions)
}

func (r *Registry) reconcileSelectionModels(records []message.SelectionModelRecord, loc proxy.Locator) []error {
	wanted := make(map[string]message.ID, len(records))
	for _, record := range records {
		wanted[record.Name] = record.GlobalID
	}
	for _, name := range r.SelectionModelNames() {
		if id, ok := wanted[name]; !ok || id != r.selectionModels[name].GlobalID() {
			delete(r.selectionModels, name)
			r.pendingUpdate = true
		}
	}
	var errs []error
	for _, record := range records {
		if _, ok := r.selectionModels[record.Name]; ok {
			continue
		}
		model, ok := r.session.RemoteObject(record.GlobalID).(*selection.Model)
		if !ok {
			model = selection.New(record.Name, r.session)
			if err := model.SetGlobalID(record.GlobalID); err != nil {
				errs = append(errs, err)
				continue
			}
			state, err := r.session.PullState(record.GlobalID)
			if err != nil {
				errs = append(errs, fmt.Errorf("selection model %s: %w", record.Name, err))
			} else if state != nil {
				if err := model.LoadState(state, loc); err != nil {
					errs = append(errs, err)
				}
			}
		}
		r.selectionModels[record.Name] = model
		r.pendingUpdate = true
	}
	return errs
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import "fmt"

// EventKind identifies a proxy event.
type EventKind uint8

const (
	// PropertyModified fires when a property value changes.
	PropertyModified EventKind = iota + 1
	// StateChanged fires after LoadState or LoadXMLState applied a state.
	StateChanged
	// Updated fires after UpdateVTKObjects flushed the proxy.
	Updated
	// UpdateInformation fires after UpdatePipelineInformation.
	UpdateInformation
)

func (k EventKind) String() string {
	switch k {
	case PropertyModified:
		return "property-modified"
	case StateChanged:
		return "state-changed"
	case Updated:
		return "updated"
	case UpdateInformation:
		return "update-information"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is delivered to observers.
type Event struct {
	Kind  EventKind
	Proxy *Proxy
	// Property names the modified property for PropertyModified.
	Property string
}

// ObserverHandle identifies a registered observer.
type ObserverHandle uint64

type observer struct {
	handle ObserverHandle
	kind   EventKind
	fn     func(Event)
}

// Observe registers fn for events of kind. Observers run
// synchronously, in registration order.
func (p *Proxy) Observe(kind EventKind, fn func(Event)) ObserverHandle {
	p.nextObserver++
	handle := p.nextObserver
	p.observers = append(p.observers, observer{handle: handle, kind: kind, fn: fn})
	return handle
}

// RemoveObserver unregisters an observer. Unknown handles are ignored.
func (p *Proxy) RemoveObserver(handle ObserverHandle) {
	for i, o := range p.observers {
		if o.handle == handle {
			p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
			return
		}
	}
}

func (p *Proxy) fire(kind EventKind, property string) {
	// Copy so observers may add or remove observers while we iterate.
	snapshot := append([]observer(nil), p.observers...)
	event := Event{Kind: kind, Proxy: p, Property: property}
	for _, o := range snapshot {
		if o.kind == kind {
			o.fn(event)
		}
	}
}

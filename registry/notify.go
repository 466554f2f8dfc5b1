// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"slices"

	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/xmlstate"
)

// NotificationKind tags a [Notification].
type NotificationKind uint8

const (
	// Registered fires once per tuple added.
	Registered NotificationKind = iota + 1
	// Unregistered fires once per tuple removed.
	Unregistered
	// PropertyModified fires when a registered proxy's property
	// changes. Property names it.
	PropertyModified
	// StateChanged fires when a registered proxy loaded a state.
	StateChanged
	// UpdateInformation fires when a registered proxy refreshed its
	// information properties.
	UpdateInformation
	// StateLoaded fires after LoadXMLState or LoadState. Locator is
	// the id-to-proxy mapping used by the load.
	StateLoaded
)

func (k NotificationKind) String() string {
	switch k {
	case Registered:
		return "registered"
	case Unregistered:
		return "unregistered"
	case PropertyModified:
		return "property-modified"
	case StateChanged:
		return "state-changed"
	case UpdateInformation:
		return "update-information"
	case StateLoaded:
		return "state-loaded"
	default:
		return fmt.Sprintf("notification(%d)", uint8(k))
	}
}

// Notification is one registry event. Which fields are set depends on
// Kind.
type Notification struct {
	Kind  NotificationKind
	Group string
	Name  string
	Proxy *proxy.Proxy

	// Property is set for PropertyModified.
	Property string

	// Locator and Document are set for StateLoaded. Document is nil
	// when the load came from a state message.
	Locator  proxy.Locator
	Document *xmlstate.Element
}

type subscriber struct {
	handle uint64
	fn     func(Notification)
}

// Subscribe registers fn to receive every notification. The returned
// function unsubscribes.
func (r *Registry) Subscribe(fn func(Notification)) (cancel func()) {
	r.nextSubscriber++
	handle := r.nextSubscriber
	r.subscribers = append(r.subscribers, subscriber{handle: handle, fn: fn})
	return func() {
		r.subscribers = slices.DeleteFunc(r.subscribers, func(s subscriber) bool {
			return s.handle == handle
		})
	}
}

func (r *Registry) notify(notification Notification) {
	for _, s := range slices.Clone(r.subscribers) {
		s.fn(notification)
	}
}

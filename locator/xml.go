// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package locator

import (
	"fmt"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/xmlstate"
)

// XMLTreeResolver resolves document ids against the <Proxy> elements
// under a document root.
type XMLTreeResolver struct {
	root    *xmlstate.Element
	factory Factory
	index   map[message.ID]*xmlstate.Element
}

// NewXMLTreeResolver returns a resolver over root.
func NewXMLTreeResolver(root *xmlstate.Element, factory Factory) *XMLTreeResolver {
	return &XMLTreeResolver{root: root, factory: factory}
}

// Find returns the <Proxy> element for a document id, or nil.
func (r *XMLTreeResolver) Find(id message.ID) *xmlstate.Element {
	if r.index == nil {
		r.index = make(map[message.ID]*xmlstate.Element)
		r.root.Walk(func(element *xmlstate.Element) bool {
			if element.Name != "Proxy" {
				return true
			}
			if documentID, err := message.ParseID(element.AttrOr("id", "")); err == nil {
				if _, seen := r.index[documentID]; !seen {
					r.index[documentID] = element
				}
			}
			return true
		})
	}
	return r.index[id]
}

func (r *XMLTreeResolver) NewProxy(id message.ID, locator *Locator) (*proxy.Proxy, error) {
	element := r.Find(id)
	if element == nil {
		return nil, nil
	}
	return instantiate(id, element, r.factory, locator)
}

// CachedXMLResolver resolves ids against elements registered with
// [CachedXMLResolver.Add].
type CachedXMLResolver struct {
	factory  Factory
	elements map[message.ID]*xmlstate.Element
}

// NewCachedXMLResolver returns an empty cache.
func NewCachedXMLResolver(factory Factory) *CachedXMLResolver {
	return &CachedXMLResolver{factory: factory, elements: make(map[message.ID]*xmlstate.Element)}
}

// Add registers a <Proxy> element for id, replacing any previous one.
func (r *CachedXMLResolver) Add(id message.ID, element *xmlstate.Element) {
	r.elements[id] = element.Clone()
}

// Remove forgets id.
func (r *CachedXMLResolver) Remove(id message.ID) { delete(r.elements, id) }

// Capture records the current XML state of p under its global id.
func (r *CachedXMLResolver) Capture(p *proxy.Proxy) {
	r.elements[p.GlobalID()] = p.SaveXMLState()
}

// Len returns the number of cached elements.
func (r *CachedXMLResolver) Len() int { return len(r.elements) }

func (r *CachedXMLResolver) NewProxy(id message.ID, locator *Locator) (*proxy.Proxy, error) {
	element, ok := r.elements[id]
	if !ok {
		return nil, nil
	}
	return instantiate(id, element, r.factory, locator)
}

func instantiate(id message.ID, element *xmlstate.Element, factory Factory, locator *Locator) (*proxy.Proxy, error) {
	group, _ := element.Attr("group")
	name, ok := element.Attr("type")
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: <Proxy id=%q> has no type attribute", ErrUnresolvableType, element.AttrOr("id", ""))
	}
	p, err := factory.NewProxy(group, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrUnresolvableType, group, name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no definition for %s/%s", ErrUnresolvableType, group, name)
	}
	if servers, ok, err := element.IntAttr("servers"); err != nil {
		return nil, fmt.Errorf("loading %s/%s (document id %d): %w", group, name, id, err)
	} else if ok {
		p.SetLocation(message.Location(servers))
	}
	p.EnsureGlobalID()
	locator.Bind(id, p)
	if err := p.LoadXMLState(element, locator); err != nil {
		return nil, fmt.Errorf("loading %s/%s (document id %d): %w", group, name, id, err)
	}
	return p, nil
}

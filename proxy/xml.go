// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/xmlstate"
)

// ErrUnresolvedReference is returned by LoadXMLState when a proxy
// property refers to an id the locator cannot resolve.
var ErrUnresolvedReference = errors.New("unresolved proxy reference")

// SaveXMLState returns the <Proxy> element describing p.
func (p *Proxy) SaveXMLState() *xmlstate.Element {
	element := xmlstate.New("Proxy",
		"group", p.XMLGroup(),
		"type", p.XMLName(),
		"id", p.id.String(),
		"servers", strconv.FormatUint(uint64(p.location), 10),
	)
	if p.subProxyName != "" {
		element.SetAttr("sub_proxy", p.subProxyName)
	}
	if p.logName != "" {
		element.SetAttr("logname", p.logName)
	}
	for _, property := range p.properties {
		texts := property.Texts()
		child := element.Append(xmlstate.New("Property",
			"name", property.Name,
			"id", p.id.String()+"."+property.Name,
			"number_of_elements", strconv.Itoa(len(texts)),
		))
		for i, text := range texts {
			child.Append(xmlstate.New("Element", "index", strconv.Itoa(i), "value", text))
		}
	}
	return element
}

// LoadXMLState applies a <Proxy> element to p. Ids inside the element
// are document ids; proxy-reference values are translated to live
// proxies through locator.
func (p *Proxy) LoadXMLState(element *xmlstate.Element, locator Locator) error {
	if element.Name != "Proxy" {
		return fmt.Errorf("proxy LoadXMLState: element is <%s>, want <Proxy>", element.Name)
	}
	if servers, ok, err := element.IntAttr("servers"); err != nil {
		return err
	} else if ok && p.id == message.NullID && !p.prototype {
		p.location = message.Location(servers)
	}
	if subProxy, ok := element.Attr("sub_proxy"); ok {
		p.subProxyName = subProxy
	}
	if logName, ok := element.Attr("logname"); ok {
		p.logName = logName
	}

	for _, child := range element.ChildrenNamed("Property") {
		name := child.AttrOr("name", "")
		i, ok := p.index[name]
		if !ok {
			continue
		}
		texts, err := elementValues(child)
		if err != nil {
			return fmt.Errorf("%s/%s property %s: %w", p.XMLGroup(), p.XMLName(), name, err)
		}
		kind := p.properties[i].Kind
		value, err := message.ParseProperty(name, kind, texts)
		if err != nil {
			return err
		}
		if kind == message.KindProxy {
			for j, documentID := range value.Proxies {
				if documentID == message.NullID {
					continue
				}
				var referenced *Proxy
				if locator != nil {
					referenced = locator.LocateProxy(documentID)
				}
				if referenced == nil {
					return fmt.Errorf("%s/%s property %s: %w %d",
						p.XMLGroup(), p.XMLName(), name, ErrUnresolvedReference, documentID)
				}
				value.Proxies[j] = referenced.EnsureGlobalID()
			}
		}
		if err := p.SetProperty(value); err != nil {
			return err
		}
	}
	p.fire(StateChanged, "")
	return nil
}

func elementValues(property *xmlstate.Element) ([]string, error) {
	type indexed struct {
		index int64
		value string
	}
	var values []indexed
	for _, element := range property.ChildrenNamed("Element") {
		index, ok, err := element.IntAttr("index")
		if err != nil {
			return nil, err
		}
		if !ok {
			index = int64(len(values))
		}
		values = append(values, indexed{index: index, value: element.AttrOr("value", "")})
	}
	slices.SortStableFunc(values, func(a, b indexed) int {
		switch {
		case a.index < b.index:
			return -1
		case a.index > b.index:
			return 1
		}
		return 0
	})
	texts := make([]string, len(values))
	for i, v := range values {
		texts[i] = v.value
	}
	return texts, nil
}

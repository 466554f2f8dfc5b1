// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/proxysync/lib/version"
	"github.com/bureau-foundation/proxysync/link"
	"github.com/bureau-foundation/proxysync/locator"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/xmlstate"
)

// DocumentRoot is the root element name of saved state documents.
const DocumentRoot = "ServerManagerState"

// SaveXMLState returns the registry as a document:
//
//	<ServerManagerState version="5.11.0">
//	  <Proxy group="sources" type="SphereSource" id="11" servers="21">...</Proxy>
//	  <ProxyCollection name="sources">
//	    <Item id="11" name="Sphere1"/>
//	  </ProxyCollection>
//	  <CustomProxyDefinitions>...</CustomProxyDefinitions>
//	  <Links>...</Links>
//	</ServerManagerState>
//
// Each unique proxy is written once, however many tuples hold it,
// together with any unregistered proxy its properties reference.
// Transient groups are skipped.
func (r *Registry) SaveXMLState() *xmlstate.Element {
	root := xmlstate.New(DocumentRoot, "version", r.docVersion.String())

	written := make(map[*proxy.Proxy]bool)
	var queue []*proxy.Proxy
	for _, t := range r.Tuples() {
		queue = append(queue, t.Proxy)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if written[p] {
			continue
		}
		if p.GlobalID() == message.NullID {
			r.logger.Warn("not saving proxy without a global id", "group", p.XMLGroup(), "name", p.XMLName())
			continue
		}
		written[p] = true
		root.Append(p.SaveXMLState())
		queue = append(queue, r.referencedProxies(p)...)
	}

	for _, group := range r.Groups(false) {
		collection := xmlstate.New("ProxyCollection", "name", group)
		for _, t := range r.GroupTuples(group) {
			if t.Proxy.GlobalID() == message.NullID {
				continue
			}
			item := collection.Append(xmlstate.New("Item", "id", t.Proxy.GlobalID().String(), "name", t.Name))
			if logName := t.Proxy.LogName(); logName != "" {
				item.SetAttr("logname", logName)
			}
		}
		root.Append(collection)
	}

	customs := root.Append(xmlstate.New("CustomProxyDefinitions"))
	for _, definition := range r.definitions.CustomDefinitions() {
		wrapper := customs.Append(xmlstate.New("CustomProxyDefinition",
			"group", definition.Group, "name", definition.Name))
		wrapper.Append(definition.Element.Clone())
	}

	links := root.Append(xmlstate.New("Links"))
	for _, name := range r.LinkNames() {
		links.Append(link.SaveXMLState(r.links[name]))
	}
	return root
}

// referencedProxies returns the live proxies p's proxy properties
// point at.
func (r *Registry) referencedProxies(p *proxy.Proxy) []*proxy.Proxy {
	var out []*proxy.Proxy
	for _, name := range p.PropertyNames() {
		value, _ := p.Property(name)
		for _, id := range value.Proxies {
			if referenced, ok := r.session.RemoteObject(id).(*proxy.Proxy); ok {
				out = append(out, referenced)
			}
		}
	}
	return out
}

// StateLoader applies a saved document to a registry and returns the
// locator that maps the document's ids to live proxies.
type StateLoader interface {
	LoadState(root *xmlstate.Element, r *Registry) (*locator.Locator, error)
}

// XMLLoader is the default StateLoader.
type XMLLoader struct{}

// LoadXMLState applies a saved document. loader may be nil for the
// default [XMLLoader]. StateLoaded is fired with the loader's locator
// even when the load partially failed; the locator's pins are released
// afterwards.
func (r *Registry) LoadXMLState(root *xmlstate.Element, loader StateLoader) error {
	if root == nil {
		r.logger.Error("LoadXMLState called without a document")
		return fmt.Errorf("loading state document: %w", ErrInvalidArgument)
	}
	if loader == nil {
		loader = XMLLoader{}
	}
	var loc *locator.Locator
	err := r.Batch(func() error {
		var err error
		loc, err = loader.LoadState(root, r)
		return err
	})
	if loc != nil {
		r.notify(Notification{Kind: StateLoaded, Locator: loc, Document: root})
		loc.Clear()
	}
	if err != nil {
		r.logger.Error("loading state document failed", "error", err)
		return fmt.Errorf("loading state document: %w", err)
	}
	return nil
}

// LoadState registers every proxy collection item of root, creating
// proxies through an XML tree resolver, then restores custom
// definitions and links.
func (XMLLoader) LoadState(root *xmlstate.Element, r *Registry) (*locator.Locator, error) {
	if root.Name != DocumentRoot {
		return nil, fmt.Errorf("root element is <%s>, want <%s>", root.Name, DocumentRoot)
	}
	if text, ok := root.Attr("version"); ok {
		documentVersion, err := version.ParseTriple(text)
		if err != nil {
			return nil, err
		}
		if !documentVersion.Readable(r.docVersion) {
			return nil, fmt.Errorf("document version %s is newer than supported version %s", documentVersion, r.docVersion)
		}
	}

	// Custom definitions first: proxies below may instantiate them.
	for _, customs := range root.ChildrenNamed("CustomProxyDefinitions") {
		for _, wrapper := range customs.ChildrenNamed("CustomProxyDefinition") {
			if len(wrapper.Children) != 1 {
				return nil, fmt.Errorf("<CustomProxyDefinition name=%q> must hold one definition", wrapper.AttrOr("name", ""))
			}
			err := r.definitions.AddCustomDefinition(wrapper.AttrOr("group", ""), wrapper.AttrOr("name", ""), wrapper.Children[0])
			if err != nil {
				return nil, err
			}
		}
	}

	loc := locator.New(locator.NewXMLTreeResolver(root, r), r.session, r.logger)
	var errs []error
	for _, collection := range root.ChildrenNamed("ProxyCollection") {
		group := collection.AttrOr("name", "")
		if group == "" || IsTransientGroup(group) {
			continue
		}
		for _, item := range collection.ChildrenNamed("Item") {
			id, err := message.ParseID(item.AttrOr("id", ""))
			if err != nil {
				errs = append(errs, fmt.Errorf("collection %s: %w", group, err))
				continue
			}
			p := loc.LocateProxy(id)
			if p == nil {
				errs = append(errs, fmt.Errorf("collection %s item %q: %w (document id %d)",
					group, item.AttrOr("name", ""), ErrUnresolvedProxy, id))
				continue
			}
			if logName, ok := item.Attr("logname"); ok {
				p.SetLogName(logName)
			}
			if _, err := r.RegisterProxy(group, item.AttrOr("name", ""), p); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, links := range root.ChildrenNamed("Links") {
		for _, element := range links.Children {
			record, err := link.RecordFromXML(element)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			restored, err := link.FromRecord(record, loc)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := r.RegisterLink(restored); err != nil {
				errs = append(errs, err)
			}
		}
	}
	errs = append(errs, loc.Err())
	return loc, errors.Join(errs...)
}

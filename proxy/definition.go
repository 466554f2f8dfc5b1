// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/xmlstate"
)

// PropertyDefinition is the shape of one property.
type PropertyDefinition struct {
	Name string
	Kind message.PropertyKind
	// NumberOfElements is the declared element count, 0 when the
	// property is variable-length.
	NumberOfElements int
	Default          message.Property
}

// Definition describes how to instantiate a proxy.
type Definition struct {
	Group string
	Name  string
	Label string

	// ClientClass is the definition tag (SourceProxy, ViewProxy, ...).
	// ServerClass is the class attribute.
	ClientClass string
	ServerClass string

	Location   message.Location
	Properties []PropertyDefinition

	// Custom is true for definitions added at runtime. Only custom
	// definitions are written into session documents.
	Custom bool

	// Element is the XML the definition was parsed from.
	Element *xmlstate.Element
}

// Property returns the named property definition.
func (d *Definition) Property(name string) (PropertyDefinition, bool) {
	for _, property := range d.Properties {
		if property.Name == name {
			return property, true
		}
	}
	return PropertyDefinition{}, false
}

// ErrUnknownDefinition is returned when no definition exists for a
// group/name pair.
var ErrUnknownDefinition = errors.New("unknown proxy definition")

type definitionKey struct{ group, name string }

// DefinitionManager holds every known proxy definition.
type DefinitionManager struct {
	definitions map[definitionKey]*Definition
	nextHandle  uint64
	listeners   []definitionListener
}

type definitionListener struct {
	handle uint64
	fn     func(group, name string)
}

// NewDefinitionManager returns an empty manager.
func NewDefinitionManager() *DefinitionManager {
	return &DefinitionManager{definitions: make(map[definitionKey]*Definition)}
}

// Find returns the definition for group/name, or nil.
func (m *DefinitionManager) Find(group, name string) *Definition {
	return m.definitions[definitionKey{group, name}]
}

// Definitions returns every definition ordered by group then name.
func (m *DefinitionManager) Definitions() []*Definition {
	out := make([]*Definition, 0, len(m.definitions))
	for _, definition := range m.definitions {
		out = append(out, definition)
	}
	slices.SortFunc(out, func(a, b *Definition) int {
		if c := strings.Compare(a.Group, b.Group); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// OnChange registers fn to be called whenever the definition for a
// group/name pair is added, replaced or removed. The returned
// function unregisters it.
func (m *DefinitionManager) OnChange(fn func(group, name string)) (cancel func()) {
	m.nextHandle++
	handle := m.nextHandle
	m.listeners = append(m.listeners, definitionListener{handle: handle, fn: fn})
	return func() {
		m.listeners = slices.DeleteFunc(m.listeners, func(l definitionListener) bool {
			return l.handle == handle
		})
	}
}

func (m *DefinitionManager) changed(group, name string) {
	for _, listener := range append([]definitionListener(nil), m.listeners...) {
		listener.fn(group, name)
	}
}

// LoadConfiguration reads a ServerManagerConfiguration document:
//
//	<ServerManagerConfiguration>
//	  <ProxyGroup name="sources">
//	    <SourceProxy name="SphereSource" label="Sphere" class="vtkSphereSource">
//	      <DoubleVectorProperty name="Radius" number_of_elements="1" default_values="0.5"/>
//	    </SourceProxy>
//	  </ProxyGroup>
//	</ServerManagerConfiguration>
//
// Existing definitions with the same group/name are replaced.
func (m *DefinitionManager) LoadConfiguration(r io.Reader) error {
	root, err := xmlstate.Parse(r)
	if err != nil {
		return fmt.Errorf("loading proxy definitions: %w", err)
	}
	return m.LoadConfigurationElement(root)
}

// LoadConfigurationElement is LoadConfiguration over a parsed root.
func (m *DefinitionManager) LoadConfigurationElement(root *xmlstate.Element) error {
	if root.Name != "ServerManagerConfiguration" {
		return fmt.Errorf("loading proxy definitions: root element is <%s>, want <ServerManagerConfiguration>", root.Name)
	}
	for _, group := range root.ChildrenNamed("ProxyGroup") {
		groupName, ok := group.Attr("name")
		if !ok || groupName == "" {
			return errors.New("loading proxy definitions: <ProxyGroup> without a name")
		}
		for _, element := range group.Children {
			definition, err := ParseDefinition(groupName, element)
			if err != nil {
				return fmt.Errorf("loading proxy definitions: %w", err)
			}
			m.install(definition)
		}
	}
	return nil
}

// AddCustomDefinition registers a definition at runtime. element is a
// proxy definition element such as <SourceProxy ...>; its name
// attribute is overridden by name.
func (m *DefinitionManager) AddCustomDefinition(group, name string, element *xmlstate.Element) error {
	if group == "" || name == "" || element == nil {
		return errors.New("custom definition requires a group, a name and an element")
	}
	element = element.Clone()
	element.SetAttr("name", name)
	definition, err := ParseDefinition(group, element)
	if err != nil {
		return err
	}
	definition.Custom = true
	m.install(definition)
	return nil
}

// RemoveCustomDefinition removes a definition added with
// AddCustomDefinition. Built-in definitions are left alone.
func (m *DefinitionManager) RemoveCustomDefinition(group, name string) {
	key := definitionKey{group, name}
	definition := m.definitions[key]
	if definition == nil || !definition.Custom {
		return
	}
	delete(m.definitions, key)
	m.changed(group, name)
}

// CustomDefinitions returns the runtime definitions in Definitions order.
func (m *DefinitionManager) CustomDefinitions() []*Definition {
	return slices.DeleteFunc(m.Definitions(), func(d *Definition) bool { return !d.Custom })
}

func (m *DefinitionManager) install(definition *Definition) {
	m.definitions[definitionKey{definition.Group, definition.Name}] = definition
	m.changed(definition.Group, definition.Name)
}

// ParseDefinition parses one proxy definition element belonging to group.
func ParseDefinition(group string, element *xmlstate.Element) (*Definition, error) {
	name, ok := element.Attr("name")
	if !ok || name == "" {
		return nil, fmt.Errorf("<%s> in group %q has no name", element.Name, group)
	}
	definition := &Definition{
		Group:       group,
		Name:        name,
		Label:       element.AttrOr("label", name),
		ClientClass: element.Name,
		ServerClass: element.AttrOr("class", ""),
		Location:    message.ClientAndServers,
		Element:     element,
	}
	if processes, ok := element.Attr("processes"); ok {
		location, err := message.ParseLocation(processes)
		if err != nil {
			return nil, fmt.Errorf("definition %s/%s: %w", group, name, err)
		}
		definition.Location = location
	}

	for _, child := range element.Children {
		if !strings.HasSuffix(child.Name, "Property") {
			continue
		}
		property, err := parsePropertyDefinition(child)
		if err != nil {
			return nil, fmt.Errorf("definition %s/%s: %w", group, name, err)
		}
		if _, duplicate := definition.Property(property.Name); duplicate {
			return nil, fmt.Errorf("definition %s/%s: property %q defined twice", group, name, property.Name)
		}
		definition.Properties = append(definition.Properties, property)
	}
	return definition, nil
}

func parsePropertyDefinition(element *xmlstate.Element) (PropertyDefinition, error) {
	name, ok := element.Attr("name")
	if !ok || name == "" {
		return PropertyDefinition{}, fmt.Errorf("<%s> has no name", element.Name)
	}
	kind, err := message.ParsePropertyKind(element.Name)
	if err != nil {
		return PropertyDefinition{}, fmt.Errorf("property %s: %w", name, err)
	}
	property := PropertyDefinition{Name: name, Kind: kind}
	if text, ok := element.Attr("number_of_elements"); ok {
		count, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || count < 0 {
			return PropertyDefinition{}, fmt.Errorf("property %s: bad number_of_elements %q", name, text)
		}
		property.NumberOfElements = count
	}

	var texts []string
	if text, ok := element.Attr("default_values"); ok {
		if kind == message.KindString {
			// String defaults are a single value; spaces are significant.
			texts = []string{text}
		} else {
			texts = strings.Fields(text)
		}
	}
	defaults, err := message.ParseProperty(name, kind, texts)
	if err != nil {
		return PropertyDefinition{}, err
	}
	if property.NumberOfElements > 0 && len(texts) > 0 && len(texts) != property.NumberOfElements {
		return PropertyDefinition{}, fmt.Errorf("property %s: %d default values for %d elements",
			name, len(texts), property.NumberOfElements)
	}
	property.Default = defaults
	return property, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"fmt"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/xmlstate"
)

// SaveXMLState returns the document element for l:
//
//	<PropertyLink name="radius">
//	  <Property id="11" name="Radius" direction="input"/>
//	  <Property id="12" name="Radius" direction="output"/>
//	</PropertyLink>
//
// Proxy links use <ProxyLink> with <Proxy id direction> entries and
// <Exception name> children.
func SaveXMLState(l Link) *xmlstate.Element {
	record := l.State()
	switch record.Kind {
	case KindProxy:
		element := xmlstate.New("ProxyLink", "name", record.Name)
		for _, entry := range record.Entries {
			element.Append(xmlstate.New("Proxy",
				"id", entry.GlobalID.String(),
				"direction", entry.Direction.String()))
		}
		for _, name := range record.Exceptions {
			element.Append(xmlstate.New("Exception", "name", name))
		}
		return element
	default:
		element := xmlstate.New("PropertyLink", "name", record.Name)
		for _, entry := range record.Entries {
			element.Append(xmlstate.New("Property",
				"id", entry.GlobalID.String(),
				"name", entry.Property,
				"direction", entry.Direction.String()))
		}
		return element
	}
}

// RecordFromXML parses a link element written by SaveXMLState. Ids in
// the record are document ids.
func RecordFromXML(element *xmlstate.Element) (message.LinkRecord, error) {
	record := message.LinkRecord{Name: element.AttrOr("name", "")}
	if record.Name == "" {
		return message.LinkRecord{}, fmt.Errorf("<%s> without a name", element.Name)
	}
	var entryTag string
	switch element.Name {
	case "PropertyLink":
		record.Kind, entryTag = KindProperty, "Property"
	case "ProxyLink":
		record.Kind, entryTag = KindProxy, "Proxy"
		for _, exception := range element.ChildrenNamed("Exception") {
			record.Exceptions = append(record.Exceptions, exception.AttrOr("name", ""))
		}
	default:
		return message.LinkRecord{}, fmt.Errorf("unknown link element <%s>", element.Name)
	}
	for _, child := range element.ChildrenNamed(entryTag) {
		id, err := message.ParseID(child.AttrOr("id", ""))
		if err != nil {
			return message.LinkRecord{}, fmt.Errorf("link %s: %w", record.Name, err)
		}
		direction, err := parseDirection(child.AttrOr("direction", ""))
		if err != nil {
			return message.LinkRecord{}, fmt.Errorf("link %s: %w", record.Name, err)
		}
		record.Entries = append(record.Entries, message.LinkEntry{
			GlobalID:  id,
			Property:  child.AttrOr("name", ""),
			Direction: direction,
		})
	}
	return record, nil
}

func parseDirection(text string) (message.LinkDirection, error) {
	switch text {
	case "input":
		return message.LinkInput, nil
	case "output":
		return message.LinkOutput, nil
	default:
		return 0, fmt.Errorf("unknown link direction %q", text)
	}
}

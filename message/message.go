// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/bureau-foundation/proxysync/lib/codec"
)

// Message is the state of one remote object.
type Message struct {
	GlobalID ID       `cbor:"1,keyasint,omitempty"`
	Location Location `cbor:"2,keyasint,omitempty"`

	// ClientClass and ServerClass name the implementation classes on
	// each side of the wire.
	ClientClass string `cbor:"3,keyasint,omitempty"`
	ServerClass string `cbor:"4,keyasint,omitempty"`

	// XMLGroup, XMLName and XMLSubProxyName identify the proxy
	// definition this state instantiates. Empty for non-proxy objects.
	XMLGroup        string `cbor:"5,keyasint,omitempty"`
	XMLName         string `cbor:"6,keyasint,omitempty"`
	XMLSubProxyName string `cbor:"7,keyasint,omitempty"`

	Properties []Property  `cbor:"8,keyasint,omitempty"`
	Extensions []Extension `cbor:"9,keyasint,omitempty"`
}

// Extension is one named record. Body is the record's own
// deterministic CBOR encoding.
type Extension struct {
	Name string           `cbor:"1,keyasint"`
	Body codec.RawMessage `cbor:"2,keyasint"`
}

// Encode returns the deterministic CBOR encoding of m.
func (m *Message) Encode() ([]byte, error) {
	return codec.Marshal(m)
}

// Decode parses a message produced by [Message.Encode].
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding state message: %w", err)
	}
	return &m, nil
}

// Digest returns the BLAKE3 digest of the encoded message.
func (m *Message) Digest() (codec.StateDigest, error) {
	return codec.Digest(m)
}

// Equal reports whether a and b encode to identical bytes. Two nil
// messages are equal; a nil and a non-nil message are not.
func Equal(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	left, err := a.Encode()
	if err != nil {
		return false
	}
	right, err := b.Encode()
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// Clone returns a deep copy of m. Clone of nil is nil.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Properties = make([]Property, len(m.Properties))
	for i, p := range m.Properties {
		out.Properties[i] = p.Clone()
	}
	if m.Properties == nil {
		out.Properties = nil
	}
	out.Extensions = make([]Extension, len(m.Extensions))
	for i, e := range m.Extensions {
		out.Extensions[i] = Extension{Name: e.Name, Body: slices.Clone(e.Body)}
	}
	if m.Extensions == nil {
		out.Extensions = nil
	}
	return &out
}

// Property returns the named property.
func (m *Message) Property(name string) (Property, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// SetProperty replaces the property with the same name, or appends p.
func (m *Message) SetProperty(p Property) {
	for i := range m.Properties {
		if m.Properties[i].Name == p.Name {
			m.Properties[i] = p
			return
		}
	}
	m.Properties = append(m.Properties, p)
}

// Append encodes record and appends it as an extension named name.
func Append[T any](m *Message, name string, record T) error {
	body, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding %s extension: %w", name, err)
	}
	m.Extensions = append(m.Extensions, Extension{Name: name, Body: body})
	return nil
}

// Records decodes every extension named name, in order. Extensions
// with other names are skipped.
func Records[T any](m *Message, name string) ([]T, error) {
	var records []T
	for i, extension := range m.Extensions {
		if extension.Name != name {
			continue
		}
		var record T
		if err := codec.Unmarshal(extension.Body, &record); err != nil {
			return nil, fmt.Errorf("decoding %s extension %d: %w", name, i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// HasExtension reports whether m carries at least one record named name.
func (m *Message) HasExtension(name string) bool {
	for _, extension := range m.Extensions {
		if extension.Name == name {
			return true
		}
	}
	return false
}

// RemoveExtensions drops every record named name.
func (m *Message) RemoveExtensions(name string) {
	m.Extensions = slices.DeleteFunc(m.Extensions, func(e Extension) bool {
		return e.Name == name
	})
	if len(m.Extensions) == 0 {
		m.Extensions = nil
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xmlstate

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Attr is one attribute of an element.
type Attr struct {
	Name  string
	Value string
}

// Element is a node of a document tree.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []*Element
}

// New returns an element with the given tag and attributes, passed as
// alternating name/value strings.
func New(name string, attributes ...string) *Element {
	element := &Element{Name: name}
	for i := 0; i+1 < len(attributes); i += 2 {
		element.SetAttr(attributes[i], attributes[i+1])
	}
	return element
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, attr := range e.Attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute, or fallback when absent.
func (e *Element) AttrOr(name, fallback string) string {
	if value, ok := e.Attr(name); ok {
		return value
	}
	return fallback
}

// IntAttr parses the named attribute as a decimal integer.
func (e *Element) IntAttr(name string) (int64, bool, error) {
	value, ok := e.Attr(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("<%s %s=%q>: %w", e.Name, name, value, err)
	}
	return n, true, nil
}

// SetAttr sets an attribute, replacing any existing value and keeping
// the original position.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// Append adds child as the last child and returns it.
func (e *Element) Append(child *Element) *Element {
	e.Children = append(e.Children, child)
	return child
}

// Child returns the first child with the given tag, or nil.
func (e *Element) Child(name string) *Element {
	for _, child := range e.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// ChildrenNamed returns the children with the given tag, in order.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, child := range e.Children {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

// Walk visits e and its descendants depth-first. Returning false from
// visit stops the walk.
func (e *Element) Walk(visit func(*Element) bool) bool {
	if !visit(e) {
		return false
	}
	for _, child := range e.Children {
		if !child.Walk(visit) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of e.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := &Element{Name: e.Name, Attrs: append([]Attr(nil), e.Attrs...)}
	for _, child := range e.Children {
		out.Children = append(out.Children, child.Clone())
	}
	return out
}

// Parse reads one XML document and returns its root element. Text
// content, comments and processing instructions are discarded.
func Parse(r io.Reader) (*Element, error) {
	decoder := xml.NewDecoder(r)
	var stack []*Element
	var root *Element
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing XML: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			element := &Element{Name: t.Name.Local}
			for _, attr := range t.Attr {
				element.Attrs = append(element.Attrs, Attr{Name: attr.Name.Local, Value: attr.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("parsing XML: more than one root element")
				}
				root = element
			} else {
				stack[len(stack)-1].Append(element)
			}
			stack = append(stack, element)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, errors.New("parsing XML: no root element")
	}
	return root, nil
}

// ParseString is Parse over a string.
func ParseString(text string) (*Element, error) {
	return Parse(strings.NewReader(text))
}

// WriteTo writes e as an indented XML document with a declaration.
func (e *Element) WriteTo(w io.Writer) (int64, error) {
	var buffer bytes.Buffer
	buffer.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buffer)
	encoder.Indent("", "  ")
	if err := e.encode(encoder); err != nil {
		return 0, err
	}
	if err := encoder.Flush(); err != nil {
		return 0, fmt.Errorf("writing XML: %w", err)
	}
	buffer.WriteByte('\n')
	return buffer.WriteTo(w)
}

func (e *Element) encode(encoder *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, attr := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attr.Name}, Value: attr.Value})
	}
	if err := encoder.EncodeToken(start); err != nil {
		return fmt.Errorf("writing <%s>: %w", e.Name, err)
	}
	for _, child := range e.Children {
		if err := child.encode(encoder); err != nil {
			return err
		}
	}
	if err := encoder.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("writing </%s>: %w", e.Name, err)
	}
	return nil
}

// String returns the document text. Intended for logs and tests.
func (e *Element) String() string {
	var buffer bytes.Buffer
	if _, err := e.WriteTo(&buffer); err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	return buffer.String()
}

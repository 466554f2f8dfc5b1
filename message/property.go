// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"fmt"
	"slices"
	"strconv"
)

// PropertyKind is the element type of a property vector.
type PropertyKind uint8

const (
	KindInt PropertyKind = iota + 1
	KindDouble
	KindString
	// KindProxy elements are global ids of other objects.
	KindProxy
)

func (k PropertyKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindProxy:
		return "proxy"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Property is one named, typed value vector. Exactly one of the
// element slices is used, selected by Kind.
type Property struct {
	Name    string       `cbor:"1,keyasint"`
	Kind    PropertyKind `cbor:"2,keyasint"`
	Ints    []int64      `cbor:"3,keyasint,omitempty"`
	Doubles []float64    `cbor:"4,keyasint,omitempty"`
	Strings []string     `cbor:"5,keyasint,omitempty"`
	Proxies []ID         `cbor:"6,keyasint,omitempty"`
}

// Ints returns an int property.
func Ints(name string, values ...int64) Property {
	return Property{Name: name, Kind: KindInt, Ints: values}
}

// Doubles returns a double property.
func Doubles(name string, values ...float64) Property {
	return Property{Name: name, Kind: KindDouble, Doubles: values}
}

// Strings returns a string property.
func Strings(name string, values ...string) Property {
	return Property{Name: name, Kind: KindString, Strings: values}
}

// Proxies returns a proxy-reference property.
func Proxies(name string, ids ...ID) Property {
	return Property{Name: name, Kind: KindProxy, Proxies: ids}
}

// Len returns the number of elements.
func (p Property) Len() int {
	switch p.Kind {
	case KindInt:
		return len(p.Ints)
	case KindDouble:
		return len(p.Doubles)
	case KindString:
		return len(p.Strings)
	case KindProxy:
		return len(p.Proxies)
	default:
		return 0
	}
}

// Equal reports whether p and other have the same name, kind and
// elements.
func (p Property) Equal(other Property) bool {
	if p.Name != other.Name || p.Kind != other.Kind {
		return false
	}
	switch p.Kind {
	case KindInt:
		return slices.Equal(p.Ints, other.Ints)
	case KindDouble:
		return slices.Equal(p.Doubles, other.Doubles)
	case KindString:
		return slices.Equal(p.Strings, other.Strings)
	case KindProxy:
		return slices.Equal(p.Proxies, other.Proxies)
	}
	return true
}

// Clone returns a deep copy of p.
func (p Property) Clone() Property {
	p.Ints = slices.Clone(p.Ints)
	p.Doubles = slices.Clone(p.Doubles)
	p.Strings = slices.Clone(p.Strings)
	p.Proxies = slices.Clone(p.Proxies)
	return p
}

// Texts returns the elements formatted as strings, the form used by
// XML state documents.
func (p Property) Texts() []string {
	out := make([]string, 0, p.Len())
	switch p.Kind {
	case KindInt:
		for _, v := range p.Ints {
			out = append(out, strconv.FormatInt(v, 10))
		}
	case KindDouble:
		for _, v := range p.Doubles {
			out = append(out, strconv.FormatFloat(v, 'g', -1, 64))
		}
	case KindString:
		out = append(out, p.Strings...)
	case KindProxy:
		for _, v := range p.Proxies {
			out = append(out, v.String())
		}
	}
	return out
}

// ParseProperty builds a property of the given kind from string
// elements.
func ParseProperty(name string, kind PropertyKind, texts []string) (Property, error) {
	p := Property{Name: name, Kind: kind}
	for i, text := range texts {
		switch kind {
		case KindInt:
			v, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return Property{}, fmt.Errorf("property %s element %d: %w", name, i, err)
			}
			p.Ints = append(p.Ints, v)
		case KindDouble:
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return Property{}, fmt.Errorf("property %s element %d: %w", name, i, err)
			}
			p.Doubles = append(p.Doubles, v)
		case KindString:
			p.Strings = append(p.Strings, text)
		case KindProxy:
			v, err := ParseID(text)
			if err != nil {
				return Property{}, fmt.Errorf("property %s element %d: %w", name, i, err)
			}
			p.Proxies = append(p.Proxies, v)
		default:
			return Property{}, fmt.Errorf("property %s: unsupported kind %s", name, kind)
		}
	}
	return p, nil
}

// ParsePropertyKind maps a definition element tag (IntVectorProperty,
// DoubleVectorProperty, StringVectorProperty, ProxyProperty,
// InputProperty) or a kind name to a kind.
func ParsePropertyKind(text string) (PropertyKind, error) {
	switch text {
	case "int", "IntVectorProperty", "IdTypeVectorProperty":
		return KindInt, nil
	case "double", "DoubleVectorProperty":
		return KindDouble, nil
	case "string", "StringVectorProperty":
		return KindString, nil
	case "proxy", "ProxyProperty", "InputProperty":
		return KindProxy, nil
	default:
		return 0, fmt.Errorf("unknown property kind %q", text)
	}
}

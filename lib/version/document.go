// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Triple is a major.minor.patch version.
type Triple struct {
	Major, Minor, Patch int
}

// Document is the version written into saved state documents.
var Document = Triple{Major: 5, Minor: 11, Patch: 0}

func (t Triple) String() string {
	return fmt.Sprintf("%d.%d.%d", t.Major, t.Minor, t.Patch)
}

// Compare returns -1, 0 or +1 as t is older than, equal to or newer
// than other.
func (t Triple) Compare(other Triple) int {
	if c := cmp.Compare(t.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(t.Minor, other.Minor); c != 0 {
		return c
	}
	return cmp.Compare(t.Patch, other.Patch)
}

// Readable reports whether a document written at version t can be
// loaded by a build writing reader. Documents from a newer major
// version are not readable.
func (t Triple) Readable(reader Triple) bool {
	return t.Major <= reader.Major
}

// ParseTriple parses "major.minor.patch". Missing trailing components
// default to zero, so "5.11" parses as 5.11.0.
func ParseTriple(text string) (Triple, error) {
	parts := strings.Split(strings.TrimSpace(text), ".")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return Triple{}, fmt.Errorf("invalid version %q: want major.minor.patch", text)
	}
	var values [3]int
	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 {
			return Triple{}, fmt.Errorf("invalid version %q: component %q is not a non-negative integer", text, part)
		}
		values[i] = value
	}
	return Triple{Major: values[0], Minor: values[1], Patch: values[2]}, nil
}

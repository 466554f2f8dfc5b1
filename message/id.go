// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is a global object identifier, unique within a session.
type ID uint32

const (
	// NullID means "no object".
	NullID ID = 0

	// RegistryID addresses the pipeline state.
	RegistryID ID = 1

	// CollaborationID addresses the collaboration manager.
	CollaborationID ID = 2

	// ReservedMaxID is the highest reserved id. Allocated ids start
	// above it.
	ReservedMaxID ID = 10
)

// IsReserved reports whether id belongs to a singleton object.
func (id ID) IsReserved() bool {
	return id != NullID && id <= ReservedMaxID
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal global id.
func ParseID(text string) (ID, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return NullID, fmt.Errorf("parsing global id %q: %w", text, err)
	}
	return ID(value), nil
}

// Location is a bitmask of the process roles holding a live instance
// of an object.
type Location uint32

const (
	// LocationNone means the object lives nowhere; prototypes have it.
	LocationNone Location = 0

	DataServer       Location = 0x01
	DataServerRoot   Location = 0x02
	RenderServer     Location = 0x04
	RenderServerRoot Location = 0x08
	Client           Location = 0x10

	// Servers is both server roles.
	Servers = DataServer | RenderServer

	// ClientAndServers is the default location of a proxy.
	ClientAndServers = Client | Servers
)

var locationNames = []struct {
	bit  Location
	name string
}{
	{Client, "client"},
	{DataServer, "dataserver"},
	{DataServerRoot, "dataserver_root"},
	{RenderServer, "renderserver"},
	{RenderServerRoot, "renderserver_root"},
}

// Has reports whether every bit of other is set in l.
func (l Location) Has(other Location) bool {
	return l&other == other
}

func (l Location) String() string {
	if l == LocationNone {
		return "none"
	}
	var parts []string
	remaining := l
	for _, entry := range locationNames {
		if l&entry.bit != 0 {
			parts = append(parts, entry.name)
			remaining &^= entry.bit
		}
	}
	if remaining != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(remaining)))
	}
	return strings.Join(parts, "|")
}

// ParseLocation parses a "|"-separated list of role names, the format
// used by the processes attribute of proxy definitions. "servers" and
// "all" are accepted as shorthands.
func ParseLocation(text string) (Location, error) {
	var result Location
	for _, part := range strings.Split(text, "|") {
		name := strings.ToLower(strings.TrimSpace(part))
		switch name {
		case "":
			continue
		case "none":
		case "servers":
			result |= Servers
		case "all":
			result |= ClientAndServers
		default:
			found := false
			for _, entry := range locationNames {
				if entry.name == name {
					result |= entry.bit
					found = true
					break
				}
			}
			if !found {
				return LocationNone, fmt.Errorf("unknown process role %q", name)
			}
		}
	}
	return result, nil
}

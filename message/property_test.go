// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import "testing"

func TestPropertyTextsRoundtrip(t *testing.T) {
	tests := []Property{
		Ints("Resolution", 8, -3),
		Doubles("Center", 0.5, 1e-12, -4),
		Strings("FileName", "data.vtu", "with space"),
		Proxies("Input", 11, 42),
	}
	for _, original := range tests {
		t.Run(original.Kind.String(), func(t *testing.T) {
			parsed, err := ParseProperty(original.Name, original.Kind, original.Texts())
			if err != nil {
				t.Fatalf("ParseProperty: %v", err)
			}
			if !parsed.Equal(original) {
				t.Errorf("got %+v, want %+v", parsed, original)
			}
			if parsed.Len() != original.Len() {
				t.Errorf("Len() = %d, want %d", parsed.Len(), original.Len())
			}
		})
	}
}

func TestParsePropertyRejectsBadElements(t *testing.T) {
	if _, err := ParseProperty("Resolution", KindInt, []string{"eight"}); err == nil {
		t.Error("ParseProperty accepted a non-integer")
	}
	if _, err := ParseProperty("Input", KindProxy, []string{"-1"}); err == nil {
		t.Error("ParseProperty accepted a negative id")
	}
	if _, err := ParseProperty("X", PropertyKind(0), []string{"1"}); err == nil {
		t.Error("ParseProperty accepted an unknown kind")
	}
}

func TestParsePropertyKind(t *testing.T) {
	tests := map[string]PropertyKind{
		"IntVectorProperty":    KindInt,
		"DoubleVectorProperty": KindDouble,
		"StringVectorProperty": KindString,
		"ProxyProperty":        KindProxy,
		"InputProperty":        KindProxy,
		"double":               KindDouble,
	}
	for text, want := range tests {
		got, err := ParsePropertyKind(text)
		if err != nil || got != want {
			t.Errorf("ParsePropertyKind(%q) = %v, %v; want %v", text, got, err, want)
		}
	}
	if _, err := ParsePropertyKind("FloatMatrix"); err == nil {
		t.Error("ParsePropertyKind accepted an unknown tag")
	}
}

func TestLocationStringAndParse(t *testing.T) {
	tests := []struct {
		location Location
		text     string
	}{
		{LocationNone, "none"},
		{Client, "client"},
		{ClientAndServers, "client|dataserver|renderserver"},
		{DataServer | DataServerRoot, "dataserver|dataserver_root"},
	}
	for _, tt := range tests {
		if got := tt.location.String(); got != tt.text {
			t.Errorf("Location(%#x).String() = %q, want %q", uint32(tt.location), got, tt.text)
		}
		parsed, err := ParseLocation(tt.text)
		if err != nil {
			t.Fatalf("ParseLocation(%q): %v", tt.text, err)
		}
		if parsed != tt.location {
			t.Errorf("ParseLocation(%q) = %#x, want %#x", tt.text, uint32(parsed), uint32(tt.location))
		}
	}

	servers, err := ParseLocation("servers")
	if err != nil || servers != Servers {
		t.Errorf("ParseLocation(servers) = %v, %v", servers, err)
	}
	if _, err := ParseLocation("client|gpu"); err == nil {
		t.Error("ParseLocation accepted an unknown role")
	}
	if !ClientAndServers.Has(Client | DataServer) {
		t.Error("ClientAndServers.Has(client|dataserver) = false")
	}
}

func TestIDReserved(t *testing.T) {
	for _, id := range []ID{RegistryID, CollaborationID, ReservedMaxID} {
		if !id.IsReserved() {
			t.Errorf("%d.IsReserved() = false", id)
		}
	}
	for _, id := range []ID{NullID, ReservedMaxID + 1} {
		if id.IsReserved() {
			t.Errorf("%d.IsReserved() = true", id)
		}
	}
	parsed, err := ParseID(" 42 ")
	if err != nil || parsed != 42 {
		t.Errorf("ParseID = %v, %v", parsed, err)
	}
	if got := ID(7).String(); got != "7" {
		t.Errorf("ID.String() = %q", got)
	}
}

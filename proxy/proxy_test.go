// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
)

const testDefinitions = `<ServerManagerConfiguration>
  <ProxyGroup name="sources">
    <SourceProxy name="SphereSource" label="Sphere" class="vtkSphereSource">
      <DoubleVectorProperty name="Radius" number_of_elements="1" default_values="0.5"/>
      <DoubleVectorProperty name="Center" number_of_elements="3" default_values="0 0 0"/>
      <IntVectorProperty name="ThetaResolution" number_of_elements="1" default_values="8"/>
    </SourceProxy>
  </ProxyGroup>
  <ProxyGroup name="filters">
    <SourceProxy name="Shrink" label="Shrink" class="vtkShrinkFilter" processes="dataserver">
      <InputProperty name="Input"/>
      <StringVectorProperty name="Note" default_values="two words"/>
    </SourceProxy>
  </ProxyGroup>
</ServerManagerConfiguration>`

// fakeSession records pushes and hands out sequential ids.
type fakeSession struct {
	next    message.ID
	objects map[message.ID]proxy.RemoteObject
	pushed  []*message.Message
	pushErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{next: message.ReservedMaxID, objects: make(map[message.ID]proxy.RemoteObject)}
}

func (s *fakeSession) NextGlobalID() message.ID { s.next++; return s.next }
func (s *fakeSession) RegisterRemoteObject(object proxy.RemoteObject) {
	s.objects[object.GlobalID()] = object
}
func (s *fakeSession) UnregisterRemoteObject(id message.ID)             { delete(s.objects, id) }
func (s *fakeSession) RemoteObject(id message.ID) proxy.RemoteObject   { return s.objects[id] }
func (s *fakeSession) Retain(message.ID)                               {}
func (s *fakeSession) Release(message.ID)                              {}
func (s *fakeSession) Pin(message.ID) func()                        { return func() {} }
func (s *fakeSession) PullState(message.ID) (*message.Message, error) { return nil, nil }
func (s *fakeSession) PushState(state *message.Message) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushed = append(s.pushed, state.Clone())
	return nil
}

// mapLocator resolves ids from a fixed map.
type mapLocator map[message.ID]*proxy.Proxy

func (m mapLocator) LocateProxy(id message.ID) *proxy.Proxy { return m[id] }

func loadDefinitions(t *testing.T) *proxy.DefinitionManager {
	t.Helper()
	definitions := proxy.NewDefinitionManager()
	if err := definitions.LoadConfiguration(strings.NewReader(testDefinitions)); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	return definitions
}

func newSphere(t *testing.T, session proxy.Session) *proxy.Proxy {
	t.Helper()
	definition := loadDefinitions(t).Find("sources", "SphereSource")
	if definition == nil {
		t.Fatal("SphereSource definition missing")
	}
	return proxy.New(definition, session)
}

func TestNewUsesDefinitionDefaults(t *testing.T) {
	sphere := newSphere(t, newFakeSession())

	if sphere.GlobalID() != message.NullID {
		t.Errorf("fresh proxy has id %d", sphere.GlobalID())
	}
	if sphere.Location() != message.ClientAndServers {
		t.Errorf("Location() = %s", sphere.Location())
	}
	if sphere.Label() != "Sphere" {
		t.Errorf("Label() = %q", sphere.Label())
	}
	radius, ok := sphere.Property("Radius")
	if !ok || len(radius.Doubles) != 1 || radius.Doubles[0] != 0.5 {
		t.Errorf("Radius = %+v, %v", radius, ok)
	}
	center, _ := sphere.Property("Center")
	if len(center.Doubles) != 3 {
		t.Errorf("Center has %d elements", len(center.Doubles))
	}
	if got := strings.Join(sphere.PropertyNames(), ","); got != "Radius,Center,ThetaResolution" {
		t.Errorf("PropertyNames() = %s", got)
	}
}

func TestSetPropertyFiresOncePerChange(t *testing.T) {
	sphere := newSphere(t, newFakeSession())
	var events []string
	sphere.Observe(proxy.PropertyModified, func(event proxy.Event) {
		events = append(events, event.Property)
	})

	if err := sphere.SetDoubles("Radius", 2); err != nil {
		t.Fatalf("SetDoubles: %v", err)
	}
	if err := sphere.SetDoubles("Radius", 2); err != nil {
		t.Fatalf("SetDoubles (same value): %v", err)
	}
	if len(events) != 1 || events[0] != "Radius" {
		t.Errorf("events = %v, want [Radius]", events)
	}
	if got := sphere.ModifiedProperties(); len(got) != 1 || got[0] != "Radius" {
		t.Errorf("ModifiedProperties() = %v", got)
	}
}

func TestSetPropertyValidation(t *testing.T) {
	sphere := newSphere(t, newFakeSession())

	if err := sphere.SetDoubles("Height", 1); !errors.Is(err, proxy.ErrUnknownProperty) {
		t.Errorf("unknown property error = %v", err)
	}
	if err := sphere.SetInts("Radius", 1); !errors.Is(err, proxy.ErrKindMismatch) {
		t.Errorf("kind mismatch error = %v", err)
	}
}

func TestRemoveObserver(t *testing.T) {
	sphere := newSphere(t, newFakeSession())
	count := 0
	handle := sphere.Observe(proxy.PropertyModified, func(proxy.Event) { count++ })
	sphere.RemoveObserver(handle)
	sphere.RemoveObserver(handle)

	if err := sphere.SetDoubles("Radius", 3); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("removed observer ran %d times", count)
	}
}

func TestUpdateVTKObjectsPushesOnlyWhenDirty(t *testing.T) {
	session := newFakeSession()
	sphere := newSphere(t, session)
	updates := 0
	sphere.Observe(proxy.Updated, func(proxy.Event) { updates++ })

	if !sphere.IsModified() {
		t.Error("never-pushed proxy not reported as modified")
	}
	if err := sphere.UpdateVTKObjects(); err != nil {
		t.Fatalf("UpdateVTKObjects: %v", err)
	}
	if sphere.GlobalID() == message.NullID {
		t.Fatal("no id after first update")
	}
	if session.RemoteObject(sphere.GlobalID()) != sphere {
		t.Error("proxy not registered with its session")
	}
	if err := sphere.UpdateVTKObjects(); err != nil {
		t.Fatal(err)
	}
	if len(session.pushed) != 1 {
		t.Fatalf("pushed %d states, want 1", len(session.pushed))
	}
	if err := sphere.SetInts("ThetaResolution", 16); err != nil {
		t.Fatal(err)
	}
	if err := sphere.UpdateVTKObjects(); err != nil {
		t.Fatal(err)
	}
	if len(session.pushed) != 2 {
		t.Fatalf("pushed %d states, want 2", len(session.pushed))
	}
	last := session.pushed[1]
	if last.XMLGroup != "sources" || last.XMLName != "SphereSource" || last.GlobalID != sphere.GlobalID() {
		t.Errorf("pushed header = %+v", last)
	}
	resolution, _ := last.Property("ThetaResolution")
	if resolution.Ints[0] != 16 {
		t.Errorf("pushed ThetaResolution = %v", resolution.Ints)
	}
	if updates != 3 {
		t.Errorf("Updated fired %d times, want 3", updates)
	}
	if sphere.IsModified() {
		t.Error("proxy still modified after update")
	}
}

func TestUpdateVTKObjectsReportsPushFailure(t *testing.T) {
	session := newFakeSession()
	session.pushErr = errors.New("connection lost")
	sphere := newSphere(t, session)

	if err := sphere.UpdateVTKObjects(); err == nil || !strings.Contains(err.Error(), "connection lost") {
		t.Errorf("UpdateVTKObjects error = %v", err)
	}
	if !sphere.IsModified() {
		t.Error("failed push cleared the modified state")
	}
}

func TestPrototypeNeverGetsID(t *testing.T) {
	session := newFakeSession()
	prototype := newSphere(t, session)
	prototype.SetPrototype(true)

	if id := prototype.EnsureGlobalID(); id != message.NullID {
		t.Errorf("prototype got id %d", id)
	}
	if err := prototype.UpdateVTKObjects(); err != nil {
		t.Fatal(err)
	}
	if len(session.pushed) != 0 {
		t.Errorf("prototype pushed %d states", len(session.pushed))
	}
	if prototype.IsModified() {
		t.Error("prototype reported as modified")
	}
}

func TestLoadStateResolvesReferences(t *testing.T) {
	session := newFakeSession()
	definitions := loadDefinitions(t)
	input := proxy.New(definitions.Find("sources", "SphereSource"), session)
	input.EnsureGlobalID()
	shrink := proxy.New(definitions.Find("filters", "Shrink"), session)
	if shrink.Location() != message.DataServer {
		t.Errorf("Shrink location = %s, want dataserver", shrink.Location())
	}

	located := 0
	locator := proxy.Locator(locatorFunc(func(id message.ID) *proxy.Proxy {
		located++
		if id == input.GlobalID() {
			return input
		}
		return nil
	}))

	state := &message.Message{
		XMLGroup: "filters",
		XMLName:  "Shrink",
		Properties: []message.Property{
			message.Proxies("Input", input.GlobalID()),
			message.Strings("Note", "loaded"),
			message.Ints("NotDeclared", 1),
		},
	}
	var kinds []proxy.EventKind
	shrink.Observe(proxy.PropertyModified, func(e proxy.Event) { kinds = append(kinds, e.Kind) })
	shrink.Observe(proxy.StateChanged, func(e proxy.Event) { kinds = append(kinds, e.Kind) })

	if err := shrink.LoadState(state, locator); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if located != 1 {
		t.Errorf("locator consulted %d times, want 1", located)
	}
	note, _ := shrink.Property("Note")
	if note.Strings[0] != "loaded" {
		t.Errorf("Note = %v", note.Strings)
	}
	if len(kinds) != 3 || kinds[2] != proxy.StateChanged {
		t.Errorf("events = %v", kinds)
	}
	if len(shrink.ModifiedProperties()) != 0 {
		t.Error("loaded properties reported as modified")
	}

	wrong := &message.Message{XMLGroup: "sources", XMLName: "SphereSource"}
	if err := shrink.LoadState(wrong, locator); err == nil {
		t.Error("LoadState accepted a state for another definition")
	}
}

type locatorFunc func(message.ID) *proxy.Proxy

func (f locatorFunc) LocateProxy(id message.ID) *proxy.Proxy { return f(id) }

func TestXMLStateRoundtripTranslatesIDs(t *testing.T) {
	session := newFakeSession()
	definitions := loadDefinitions(t)
	sphere := proxy.New(definitions.Find("sources", "SphereSource"), session)
	shrink := proxy.New(definitions.Find("filters", "Shrink"), session)
	if err := shrink.SetProxies("Input", sphere); err != nil {
		t.Fatal(err)
	}
	if err := sphere.SetDoubles("Center", 1, 2, 3); err != nil {
		t.Fatal(err)
	}
	shrink.EnsureGlobalID()
	shrink.SetLogName("my shrink")

	sphereElement := sphere.SaveXMLState()
	shrinkElement := shrink.SaveXMLState()
	if shrinkElement.AttrOr("logname", "") != "my shrink" {
		t.Errorf("logname missing: %s", shrinkElement)
	}

	// Load into a second session where ids differ.
	other := newFakeSession()
	other.next = 500
	loadedSphere := proxy.New(definitions.Find("sources", "SphereSource"), other)
	if err := loadedSphere.LoadXMLState(sphereElement, nil); err != nil {
		t.Fatalf("LoadXMLState(sphere): %v", err)
	}
	loadedShrink := proxy.New(definitions.Find("filters", "Shrink"), other)
	if err := loadedShrink.LoadXMLState(shrinkElement, mapLocator{sphere.GlobalID(): loadedSphere}); err != nil {
		t.Fatalf("LoadXMLState(shrink): %v", err)
	}

	center, _ := loadedSphere.Property("Center")
	if len(center.Doubles) != 3 || center.Doubles[2] != 3 {
		t.Errorf("Center = %v", center.Doubles)
	}
	input, _ := loadedShrink.Property("Input")
	if len(input.Proxies) != 1 || input.Proxies[0] != loadedSphere.GlobalID() {
		t.Errorf("Input = %v, want [%d]", input.Proxies, loadedSphere.GlobalID())
	}
	if loadedSphere.GlobalID() == sphere.GlobalID() {
		t.Error("document id leaked into the new session")
	}
	if loadedShrink.LogName() != "my shrink" {
		t.Errorf("LogName() = %q", loadedShrink.LogName())
	}

	unresolved := proxy.New(definitions.Find("filters", "Shrink"), other)
	if err := unresolved.LoadXMLState(shrinkElement, mapLocator{}); !errors.Is(err, proxy.ErrUnresolvedReference) {
		t.Errorf("unresolved reference error = %v", err)
	}
}

func TestCopy(t *testing.T) {
	session := newFakeSession()
	source := newSphere(t, session)
	target := newSphere(t, session)
	if err := source.SetDoubles("Radius", 7); err != nil {
		t.Fatal(err)
	}
	if err := target.Copy(source); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	radius, _ := target.Property("Radius")
	if radius.Doubles[0] != 7 {
		t.Errorf("Radius = %v", radius.Doubles)
	}

	shrink := proxy.New(loadDefinitions(t).Find("filters", "Shrink"), session)
	if err := target.Copy(shrink); err == nil {
		t.Error("Copy across definitions succeeded")
	}
}

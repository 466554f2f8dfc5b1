// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry_test

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/proxysync/link"
	"github.com/bureau-foundation/proxysync/locator"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/registry"
	"github.com/bureau-foundation/proxysync/selection"
	"github.com/bureau-foundation/proxysync/xmlstate"
)

func TestSaveLoadXMLRoundtrip(t *testing.T) {
	source := newRegistry(t, newFakeSession(100, nil))
	sphere := mustProxy(t, source, "sources", "SphereSource")
	if err := sphere.SetDoubles("Radius", 2); err != nil {
		t.Fatal(err)
	}
	mustRegister(t, source, "sources", "Sphere1", sphere)
	mustRegister(t, source, "favorites", "Fav", sphere)

	shrink := mustProxy(t, source, "filters", "Shrink")
	if err := shrink.SetProxies("Input", sphere); err != nil {
		t.Fatal(err)
	}
	shrink.SetLogName("first shrink")
	mustRegister(t, source, "filters", "Shrink1", shrink)
	follower := mustProxy(t, source, "filters", "Shrink")
	mustRegister(t, source, "filters", "Shrink2", follower)

	factorLink := link.NewPropertyLink("factor")
	if err := factorLink.AddLinkedProperty(shrink, "ShrinkFactor", message.LinkInput); err != nil {
		t.Fatal(err)
	}
	if err := factorLink.AddLinkedProperty(follower, "ShrinkFactor", message.LinkOutput); err != nil {
		t.Fatal(err)
	}
	if err := source.RegisterLink(factorLink); err != nil {
		t.Fatal(err)
	}
	if err := source.Definitions().AddCustomDefinition("sources", "BigSphere", sphere.Definition().Element); err != nil {
		t.Fatal(err)
	}
	source.GetPrototypeProxy("sources", "SphereSource")

	saved := source.SaveXMLState()
	if got := len(saved.ChildrenNamed("Proxy")); got != 3 {
		t.Errorf("saved %d proxies, want 3 unique", got)
	}
	document, err := xmlstate.ParseString(saved.String())
	if err != nil {
		t.Fatal(err)
	}

	target := newRegistry(t, newFakeSession(500, nil))
	rec := record(target)
	if err := target.LoadXMLState(document, nil); err != nil {
		t.Fatalf("LoadXMLState: %v", err)
	}

	if got, want := tupleNames(target.Tuples()), tupleNames(source.Tuples()); !slices.Equal(got, want) {
		t.Errorf("tuples = %v, want %v", got, want)
	}
	loadedSphere := target.GetProxy("sources", "Sphere1")
	if loadedSphere == nil || target.GetProxy("favorites", "Fav") != loadedSphere {
		t.Fatal("sphere not shared between its two groups")
	}
	radius, _ := loadedSphere.Property("Radius")
	if radius.Doubles[0] != 2 {
		t.Errorf("Radius = %v", radius.Doubles)
	}
	loadedShrink := target.GetProxy("filters", "Shrink1")
	input, _ := loadedShrink.Property("Input")
	if !slices.Equal(input.Proxies, []message.ID{loadedSphere.GlobalID()}) {
		t.Errorf("Input = %v, want [%d]", input.Proxies, loadedSphere.GlobalID())
	}
	if loadedShrink.LogName() != "first shrink" {
		t.Errorf("LogName() = %q", loadedShrink.LogName())
	}
	if definition := target.Definitions().Find("sources", "BigSphere"); definition == nil || !definition.Custom {
		t.Error("custom definition not restored")
	}

	if target.GetLink("factor") == nil {
		t.Fatal("link not restored")
	}
	if err := loadedShrink.SetDoubles("ShrinkFactor", 0.9); err != nil {
		t.Fatal(err)
	}
	factor, _ := target.GetProxy("filters", "Shrink2").Property("ShrinkFactor")
	if factor.Doubles[0] != 0.9 {
		t.Errorf("restored link did not propagate: %v", factor.Doubles)
	}

	var loaded *registry.Notification
	for i := range rec.notifications {
		if rec.notifications[i].Kind == registry.StateLoaded {
			loaded = &rec.notifications[i]
		}
	}
	if loaded == nil || loaded.Document != document || loaded.Locator == nil {
		t.Fatalf("StateLoaded notification = %+v", loaded)
	}
	session := target.Session().(*fakeSession)
	if got := session.retained[loadedSphere.GlobalID()]; got != 2 {
		t.Errorf("sphere retained %d times after load, want one per tuple", got)
	}
}

func TestLoadXMLStateRejectsNewerDocument(t *testing.T) {
	r := newRegistry(t, newFakeSession(100, nil))
	document, err := xmlstate.ParseString(`<ServerManagerState version="99.0.0"/>`)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.LoadXMLState(document, nil); err == nil {
		t.Error("newer major version accepted")
	}
	wrongRoot, _ := xmlstate.ParseString(`<State/>`)
	if err := r.LoadXMLState(wrongRoot, nil); err == nil {
		t.Error("wrong root accepted")
	}
}

func TestLoadXMLStateReportsUnresolvedItems(t *testing.T) {
	r := newRegistry(t, newFakeSession(100, nil))
	document, err := xmlstate.ParseString(`<ServerManagerState version="5.11.0">
  <Proxy group="sources" type="SphereSource" id="3" servers="21"/>
  <ProxyCollection name="sources">
    <Item id="3" name="Kept"/>
    <Item id="7" name="Lost"/>
  </ProxyCollection>
</ServerManagerState>`)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.LoadXMLState(document, nil); !errors.Is(err, registry.ErrUnresolvedProxy) {
		t.Errorf("LoadXMLState error = %v", err)
	}
	if r.GetProxy("sources", "Kept") == nil {
		t.Error("resolvable item not registered")
	}
}

type countingLoader struct {
	calls int
}

func (l *countingLoader) LoadState(root *xmlstate.Element, r *registry.Registry) (*locator.Locator, error) {
	l.calls++
	return registry.XMLLoader{}.LoadState(root, r)
}

func TestLoadXMLStateUsesGivenLoader(t *testing.T) {
	r := newRegistry(t, newFakeSession(100, nil))
	loader := &countingLoader{}
	document, _ := xmlstate.ParseString(`<ServerManagerState/>`)
	if err := r.LoadXMLState(document, loader); err != nil {
		t.Fatal(err)
	}
	if loader.calls != 1 {
		t.Errorf("loader called %d times", loader.calls)
	}
}

func TestLoadStateReconciles(t *testing.T) {
	server := make(map[message.ID]*message.Message)
	a := newRegistry(t, newFakeSession(100, server))
	bSession := newFakeSession(200, server)
	b := newRegistry(t, bSession)

	p2 := mustProxy(t, a, "sources", "SphereSource")
	if err := p2.SetDoubles("Radius", 4); err != nil {
		t.Fatal(err)
	}
	mustRegister(t, a, "sources", "s1", p2)

	p1 := mustProxy(t, b, "views", "RenderView")
	mustRegister(t, b, "views", "v1", p1)

	target := b.GetFullState()
	if err := message.Append(target, message.ExtensionRegisteredProxy,
		message.RegisteredProxy{Group: "sources", Name: "s1", GlobalID: p2.GlobalID()}); err != nil {
		t.Fatal(err)
	}
	if err := message.Append(target, "from_a_newer_release", struct{ X int }{1}); err != nil {
		t.Fatal(err)
	}

	rec := record(b)
	if err := b.LoadState(target, nil); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := tupleNames(b.Tuples()); !slices.Equal(got, []string{"sources/s1", "views/v1"}) {
		t.Errorf("tuples = %v", got)
	}
	if rec.count(registry.Unregistered) != 0 || rec.count(registry.Registered) != 1 {
		t.Errorf("registered %d, unregistered %d", rec.count(registry.Registered), rec.count(registry.Unregistered))
	}
	if b.GetProxy("views", "v1") != p1 {
		t.Error("live proxy replaced by reconciliation")
	}
	mirror := b.GetProxy("sources", "s1")
	radius, _ := mirror.Property("Radius")
	if mirror.GlobalID() != p2.GlobalID() || radius.Doubles[0] != 4 {
		t.Errorf("mirror id %d radius %v", mirror.GlobalID(), radius.Doubles)
	}
	if rec.count(registry.StateLoaded) != 1 {
		t.Errorf("StateLoaded fired %d times", rec.count(registry.StateLoaded))
	}

	// Reapplying the same state changes nothing.
	before := len(rec.notifications)
	if err := b.LoadState(target, nil); err != nil {
		t.Fatal(err)
	}
	if rec.count(registry.Registered)+rec.count(registry.Unregistered) != 1 || len(rec.notifications) != before+1 {
		t.Errorf("reapplying the state fired %v", rec.notifications[before:])
	}

	onlyS1 := &message.Message{GlobalID: message.RegistryID}
	if err := message.Append(onlyS1, message.ExtensionRegisteredProxy,
		message.RegisteredProxy{Group: "sources", Name: "s1", GlobalID: p2.GlobalID()}); err != nil {
		t.Fatal(err)
	}
	if err := b.LoadState(onlyS1, nil); err != nil {
		t.Fatal(err)
	}
	if got := tupleNames(b.Tuples()); !slices.Equal(got, []string{"sources/s1"}) {
		t.Errorf("tuples after removal = %v", got)
	}
	if rec.count(registry.Unregistered) != 1 {
		t.Errorf("unregistered %d times, want 1", rec.count(registry.Unregistered))
	}
	if bSession.retained[p1.GlobalID()] != 0 {
		t.Error("removed proxy still retained")
	}
}

func TestLoadStateReportsUnresolvableProxy(t *testing.T) {
	r := newRegistry(t, newFakeSession(100, nil))
	state := &message.Message{GlobalID: message.RegistryID}
	if err := message.Append(state, message.ExtensionRegisteredProxy,
		message.RegisteredProxy{Group: "sources", Name: "ghost", GlobalID: 999}); err != nil {
		t.Fatal(err)
	}
	if err := r.LoadState(state, nil); !errors.Is(err, registry.ErrUnresolvedProxy) {
		t.Errorf("LoadState error = %v", err)
	}
	if err := r.LoadState(nil, nil); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Errorf("nil state: %v", err)
	}
}

func TestFullStateIsDeterministic(t *testing.T) {
	r := newRegistry(t, newFakeSession(100, nil))
	for _, name := range []string{"b", "a", "c"} {
		mustRegister(t, r, "sources", name, mustProxy(t, r, "sources", "SphereSource"))
	}
	first, err := r.GetFullState().Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := message.Decode(first)
	if err != nil {
		t.Fatal(err)
	}
	again, err := decoded.Encode()
	if err != nil {
		t.Fatal(err)
	}
	second, _ := r.GetFullState().Encode()
	if !bytes.Equal(first, again) || !bytes.Equal(first, second) {
		t.Error("full state encoding is not stable")
	}
	records, _ := message.Records[message.RegisteredProxy](decoded, message.ExtensionRegisteredProxy)
	if len(records) != 3 || records[0].Name != "a" || records[2].Name != "c" {
		t.Errorf("records = %+v", records)
	}
}

func TestPipelineStateRemoteLoadDoesNotEcho(t *testing.T) {
	server := make(map[message.ID]*message.Message)
	a := newRegistry(t, newFakeSession(100, server))
	mustRegister(t, a, "sources", "s1", mustProxy(t, a, "sources", "SphereSource"))

	bSession := newFakeSession(200, server)
	b := newRegistry(t, bSession)
	pipeline := b.PipelineState()
	if pipeline.GlobalID() != message.RegistryID || bSession.RemoteObject(message.RegistryID) != pipeline {
		t.Fatal("pipeline state not registered at its reserved id")
	}
	if err := pipeline.LoadState(server[message.RegistryID].Clone(), nil); err != nil {
		t.Fatal(err)
	}
	if b.GetProxy("sources", "s1") == nil {
		t.Fatal("remote tuple not applied")
	}
	if bSession.pipelinePushes() != 0 {
		t.Errorf("remote load echoed %d pipeline pushes", bSession.pipelinePushes())
	}
	if !pipeline.IsStateUpdateNotificationEnabled() {
		t.Error("notification left disabled after remote load")
	}
	if err := pipeline.ValidateState(); err != nil || bSession.pipelinePushes() != 0 {
		t.Errorf("unchanged state pushed after remote load (err %v)", err)
	}

	pipeline.DisableStateUpdateNotification()
	mustRegister(t, b, "sources", "local", mustProxy(t, b, "sources", "SphereSource"))
	if bSession.pipelinePushes() != 0 {
		t.Error("pushed while notification was disabled")
	}
	pipeline.EnableStateUpdateNotification()
	if err := pipeline.ValidateState(); err != nil {
		t.Fatal(err)
	}
	if err := pipeline.ValidateState(); err != nil {
		t.Fatal(err)
	}
	if bSession.pipelinePushes() != 1 {
		t.Errorf("pipeline pushed %d times, want 1", bSession.pipelinePushes())
	}
	records, _ := message.Records[message.RegisteredProxy](server[message.RegistryID], message.ExtensionRegisteredProxy)
	if len(records) != 2 {
		t.Errorf("server pipeline state has %d tuples", len(records))
	}
}

func TestLinksAndSelectionModelsSynchronize(t *testing.T) {
	server := make(map[message.ID]*message.Message)
	aSession := newFakeSession(100, server)
	a := newRegistry(t, aSession)
	left := mustProxy(t, a, "views", "RenderView")
	right := mustProxy(t, a, "views", "RenderView")
	mustRegister(t, a, "views", "Left", left)
	mustRegister(t, a, "views", "Right", right)
	sizeLink := link.NewPropertyLink("size")
	if err := sizeLink.AddLinkedProperty(left, "ViewSize", message.LinkInput); err != nil {
		t.Fatal(err)
	}
	if err := sizeLink.AddLinkedProperty(right, "ViewSize", message.LinkOutput); err != nil {
		t.Fatal(err)
	}
	if err := a.RegisterLink(sizeLink); err != nil {
		t.Fatal(err)
	}
	model := selection.New("ActiveView", aSession)
	if err := a.RegisterSelectionModel("ActiveView", model); err != nil {
		t.Fatal(err)
	}
	if err := model.Select(left.GlobalID()); err != nil {
		t.Fatal(err)
	}

	b := newRegistry(t, newFakeSession(300, server))
	if err := b.PipelineState().LoadState(server[message.RegistryID].Clone(), nil); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := b.LinkNames(); !slices.Equal(got, []string{"size"}) {
		t.Fatalf("LinkNames() = %v", got)
	}
	bLeft, bRight := b.GetProxy("views", "Left"), b.GetProxy("views", "Right")
	if err := bLeft.SetInts("ViewSize", 640, 480); err != nil {
		t.Fatal(err)
	}
	size, _ := bRight.Property("ViewSize")
	if !slices.Equal(size.Ints, []int64{640, 480}) {
		t.Errorf("mirrored link did not propagate: %v", size.Ints)
	}
	mirrorModel := b.GetSelectionModel("ActiveView")
	if mirrorModel == nil || !mirrorModel.IsSelected(left.GlobalID()) {
		t.Fatalf("selection model = %v", mirrorModel)
	}

	if err := a.UnRegisterLink("size"); err != nil {
		t.Fatal(err)
	}
	if err := a.UnRegisterSelectionModel("ActiveView"); err != nil {
		t.Fatal(err)
	}
	if err := b.PipelineState().LoadState(server[message.RegistryID].Clone(), nil); err != nil {
		t.Fatal(err)
	}
	if len(b.LinkNames()) != 0 || len(b.SelectionModelNames()) != 0 {
		t.Errorf("links %v, models %v after removal", b.LinkNames(), b.SelectionModelNames())
	}
}

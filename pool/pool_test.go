// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/proxysync/lib/testutil"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/pool"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/registry"
	"github.com/bureau-foundation/proxysync/server"
	"github.com/bureau-foundation/proxysync/session"
	"github.com/bureau-foundation/proxysync/store"
)

const testDefinitions = `<ServerManagerConfiguration>
  <ProxyGroup name="sources">
    <SourceProxy name="SphereSource" label="Sphere" class="vtkSphereSource">
      <DoubleVectorProperty name="Radius" number_of_elements="1" default_values="0.5"/>
    </SourceProxy>
  </ProxyGroup>
  <ProxyGroup name="writers">
    <WriterProxy name="CSVWriter" label="CSV" class="vtkCSVWriter">
      <InputProperty name="Input"/>
      <StringVectorProperty name="FileName" number_of_elements="1" default_values="out.csv"/>
    </WriterProxy>
    <WriterProxy name="StateWriter" label="State" class="vtkStateWriter">
      <StringVectorProperty name="FileName" number_of_elements="1" default_values="state.pvsm"/>
    </WriterProxy>
  </ProxyGroup>
  <ProxyGroup name="screenshots">
    <ScreenshotProxy name="PNG" label="PNG" class="vtkPNGWriter">
      <IntVectorProperty name="Resolution" number_of_elements="2" default_values="800 600"/>
    </ScreenshotProxy>
  </ProxyGroup>
  <ProxyGroup name="misc">
    <Proxy name="ExportGlobalOptions" label="Export Options" class="vtkExportOptions">
      <IntVectorProperty name="Enabled" number_of_elements="1" default_values="1"/>
    </Proxy>
  </ProxyGroup>
</ServerManagerConfiguration>`

type fixture struct {
	ctx      context.Context
	server   *server.Server
	session  *session.Session
	registry *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := testutil.Context(t, 0)
	srv, err := server.New(ctx, server.Config{Store: store.NewMemory()})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	s, err := session.Create(ctx, session.Config{Conn: srv.LocalConn(ctx), UserLabel: "tester", IDChunk: 16})
	if err != nil {
		t.Fatalf("session.Create: %v", err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	definitions := proxy.NewDefinitionManager()
	if err := definitions.LoadConfiguration(strings.NewReader(testDefinitions)); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	r, err := registry.New(registry.Config{Session: s, Definitions: definitions})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	t.Cleanup(r.Close)
	return &fixture{ctx: ctx, server: srv, session: s, registry: r}
}

func (f *fixture) sphere(t *testing.T) *proxy.Proxy {
	t.Helper()
	p, err := f.registry.NewProxy("sources", "SphereSource")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.RegisterProxy("sources", "", p); err != nil {
		t.Fatalf("RegisterProxy: %v", err)
	}
	return p
}

func (f *fixture) depot(t *testing.T) *pool.Depot {
	t.Helper()
	d, err := pool.NewDepot(pool.DepotConfig{
		Registry:      f.registry,
		GlobalOptions: pool.Ref{Group: "misc", Name: "ExportGlobalOptions"},
	})
	if err != nil {
		t.Fatalf("NewDepot: %v", err)
	}
	return d
}

// onServer reports whether the server holds a state for id.
func (f *fixture) onServer(t *testing.T, id message.ID) bool {
	t.Helper()
	state, err := f.server.Pull(f.ctx, id)
	if err != nil {
		t.Fatalf("server Pull(%d): %v", id, err)
	}
	return state != nil
}

func registeredGroups(state *message.Message, t *testing.T) []string {
	t.Helper()
	records, err := message.Records[message.RegisteredProxy](state, message.ExtensionRegisteredProxy)
	if err != nil {
		t.Fatalf("reading registered proxies: %v", err)
	}
	var groups []string
	for _, record := range records {
		if !slices.Contains(groups, record.Group) {
			groups = append(groups, record.Group)
		}
	}
	return groups
}

func TestWriterProxyIsMemoizedPerInput(t *testing.T) {
	f := newFixture(t)
	depot := f.depot(t)
	first := f.sphere(t)
	second := f.sphere(t)

	if depot.HasWriterProxy("writers", "CSVWriter", first) {
		t.Fatal("HasWriterProxy before creation")
	}
	writer, err := depot.WriterProxy(first, "writers", "CSVWriter")
	if err != nil {
		t.Fatalf("WriterProxy: %v", err)
	}
	again, err := depot.WriterProxy(first, "writers", "CSVWriter")
	if err != nil {
		t.Fatalf("WriterProxy: %v", err)
	}
	if again != writer {
		t.Error("second WriterProxy call created a new proxy")
	}
	if !depot.HasWriterProxy("writers", "CSVWriter", first) {
		t.Error("HasWriterProxy false after creation")
	}
	if depot.HasWriterProxy("writers", "CSVWriter", second) {
		t.Error("writer of one input reported for another")
	}

	input, _ := writer.Property(pool.InputProperty)
	if len(input.Proxies) != 1 || input.Proxies[0] != first.GlobalID() {
		t.Errorf("writer input = %v, want [%d]", input.Proxies, first.GlobalID())
	}
	key := pool.WriterKey("writers", "CSVWriter", first.GlobalID())
	if f.registry.GetProxy(pool.WritersGroup, key) != writer {
		t.Errorf("writer not registered as %s/%s", pool.WritersGroup, key)
	}
	if !f.onServer(t, writer.GlobalID()) {
		t.Error("writer state was not pushed")
	}

	other, err := depot.WriterProxy(second, "writers", "CSVWriter")
	if err != nil {
		t.Fatalf("WriterProxy: %v", err)
	}
	if other == writer {
		t.Error("two inputs share one writer")
	}
	if got := len(depot.Writers()); got != 2 {
		t.Errorf("Writers() has %d entries, want 2", got)
	}

	// Export groups are part of the shared pipeline state.
	if groups := registeredGroups(f.registry.GetFullState(), t); !slices.Contains(groups, pool.WritersGroup) {
		t.Errorf("pipeline state groups %v lack %s", groups, pool.WritersGroup)
	}
}

func TestWriterProxyErrors(t *testing.T) {
	f := newFixture(t)
	depot := f.depot(t)

	if _, err := depot.WriterProxy(nil, "writers", "CSVWriter"); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Errorf("nil input: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := depot.WriterProxy(f.sphere(t), "writers", "NoSuchWriter"); !errors.Is(err, proxy.ErrUnknownDefinition) {
		t.Errorf("unknown writer: err = %v, want ErrUnknownDefinition", err)
	}
	if depot.HasWriterProxy("writers", "CSVWriter", nil) {
		t.Error("HasWriterProxy(nil) = true")
	}

	// A writer without an input property is still created.
	if _, err := depot.WriterProxy(f.sphere(t), "writers", "StateWriter"); err != nil {
		t.Errorf("writer without input property: %v", err)
	}
}

func TestScreenshotAndGlobalOptions(t *testing.T) {
	f := newFixture(t)
	depot := f.depot(t)

	shot, err := depot.ScreenshotProxy("screenshots", "PNG")
	if err != nil {
		t.Fatalf("ScreenshotProxy: %v", err)
	}
	if again, _ := depot.ScreenshotProxy("screenshots", "PNG"); again != shot {
		t.Error("ScreenshotProxy not memoized")
	}
	if f.registry.GetProxy(pool.ScreenshotsGroup, pool.ScreenshotKey("screenshots", "PNG")) != shot {
		t.Error("screenshot proxy not registered under its key")
	}

	global, err := depot.GlobalOptions()
	if err != nil {
		t.Fatalf("GlobalOptions: %v", err)
	}
	if again, _ := depot.GlobalOptions(); again != global {
		t.Error("GlobalOptions not memoized")
	}

	unconfigured, err := pool.NewDepot(pool.DepotConfig{Registry: f.registry})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unconfigured.GlobalOptions(); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Errorf("GlobalOptions without a definition: err = %v", err)
	}
	if _, err := pool.NewDepot(pool.DepotConfig{}); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Errorf("NewDepot without registry: err = %v", err)
	}
}

func TestReleaseWritersAndClear(t *testing.T) {
	f := newFixture(t)
	depot := f.depot(t)
	first, second := f.sphere(t), f.sphere(t)

	csv, _ := depot.WriterProxy(first, "writers", "CSVWriter")
	depot.WriterProxy(first, "writers", "StateWriter")
	kept, _ := depot.WriterProxy(second, "writers", "CSVWriter")
	depot.ScreenshotProxy("screenshots", "PNG")

	removed, err := depot.ReleaseWriters(first.GlobalID())
	if err != nil {
		t.Fatalf("ReleaseWriters: %v", err)
	}
	if removed != 2 {
		t.Errorf("ReleaseWriters removed %d, want 2", removed)
	}
	if f.session.RemoteObject(csv.GlobalID()) != nil || f.onServer(t, csv.GlobalID()) {
		t.Error("released writer still alive")
	}
	if !depot.HasWriterProxy("writers", "CSVWriter", second) {
		t.Error("writer of another input was released")
	}

	if err := depot.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, group := range []string{pool.WritersGroup, pool.ScreenshotsGroup, pool.GlobalOptionsGroup} {
		if n := f.registry.NumberOfProxies(group); n != 0 {
			t.Errorf("%s holds %d proxies after Clear", group, n)
		}
	}
	if f.onServer(t, kept.GlobalID()) {
		t.Error("cleared writer still on the server")
	}
	if f.registry.GetProxyByID(first.GlobalID()) != first {
		t.Error("Clear touched the exported source")
	}
}

func TestWriterKeys(t *testing.T) {
	group, format, id, err := pool.ParseWriterKey(pool.WriterKey("writers", "CSVWriter", 42))
	if err != nil || group != "writers" || format != "CSVWriter" || id != 42 {
		t.Fatalf("ParseWriterKey round trip = %q %q %d %v", group, format, id, err)
	}
	for _, bad := range []string{"", "writers|CSVWriter", "|CSVWriter|1", "writers|CSVWriter|x", "a|b|1|2"} {
		if _, _, _, err := pool.ParseWriterKey(bad); err == nil {
			t.Errorf("ParseWriterKey(%q) succeeded", bad)
		}
	}
}

func newTemporal(t *testing.T, f *fixture, capacity int) *pool.Temporal {
	t.Helper()
	temporal, err := pool.NewTemporal(pool.TemporalConfig{Registry: f.registry, Capacity: capacity})
	if err != nil {
		t.Fatalf("NewTemporal: %v", err)
	}
	return temporal
}

func radius(t *testing.T, p *proxy.Proxy) float64 {
	t.Helper()
	value, ok := p.Property("Radius")
	if !ok || len(value.Doubles) != 1 {
		t.Fatalf("Radius property = %+v", value)
	}
	return value.Doubles[0]
}

func TestTemporalCaptureAndLookup(t *testing.T) {
	f := newFixture(t)
	temporal := newTemporal(t, f, 0)
	source := f.sphere(t)
	id := source.GlobalID()

	if temporal.Capacity() != pool.DefaultTemporalCapacity {
		t.Errorf("Capacity = %d, want default %d", temporal.Capacity(), pool.DefaultTemporalCapacity)
	}

	source.SetDoubles("Radius", 1)
	atOne, err := temporal.Capture(source, 1)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	source.SetDoubles("Radius", 2)
	if _, err := temporal.Capture(source, 0.5); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if got := temporal.Lookup(id, 1); got != atOne {
		t.Fatal("Lookup(1) did not return the snapshot")
	}
	if radius(t, atOne) != 1 || radius(t, temporal.Lookup(id, 0.5)) != 2 {
		t.Error("snapshots do not hold the captured values")
	}
	if temporal.Lookup(id, 3) != nil || temporal.Lookup(id+1, 1) != nil {
		t.Error("Lookup of an absent key returned a proxy")
	}
	if got := temporal.Times(id); !slices.Equal(got, []float64{0.5, 1}) {
		t.Errorf("Times = %v, want [0.5 1]", got)
	}
	if atOne.GlobalID() == id || !f.onServer(t, atOne.GlobalID()) {
		t.Error("snapshot is not a separate pushed object")
	}

	// Capturing the same key again refreshes in place.
	source.SetDoubles("Radius", 3)
	refreshed, err := temporal.Capture(source, 1)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if refreshed != atOne || radius(t, atOne) != 3 || temporal.Len() != 2 {
		t.Error("recapture did not refresh the existing snapshot")
	}
}

func TestTemporalGroupIsTransient(t *testing.T) {
	f := newFixture(t)
	temporal := newTemporal(t, f, 4)
	source := f.sphere(t)
	snapshot, err := temporal.Capture(source, 0)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	name := pool.SnapshotName(source.GlobalID(), 0)
	if f.registry.GetProxy(registry.TemporalCacheGroup, name) != snapshot {
		t.Fatalf("snapshot not registered as %s", name)
	}
	if groups := registeredGroups(f.registry.GetFullState(), t); slices.Contains(groups, registry.TemporalCacheGroup) {
		t.Error("temporal cache listed in the pipeline state")
	}
	if strings.Contains(f.registry.SaveXMLState().String(), registry.TemporalCacheGroup) {
		t.Error("temporal cache saved to the state document")
	}
}

func TestTemporalEvictsLeastRecentlyUsed(t *testing.T) {
	f := newFixture(t)
	temporal := newTemporal(t, f, 2)
	source := f.sphere(t)
	id := source.GlobalID()

	oldest, _ := temporal.Capture(source, 0)
	middle, _ := temporal.Capture(source, 1)
	temporal.Lookup(id, 0)
	if _, err := temporal.Capture(source, 2); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if temporal.Len() != 2 {
		t.Fatalf("Len = %d, want 2", temporal.Len())
	}
	if temporal.Lookup(id, 1) != nil {
		t.Error("least recently used snapshot was kept")
	}
	if temporal.Lookup(id, 0) != oldest {
		t.Error("recently looked-up snapshot was evicted")
	}
	if f.session.RemoteObject(middle.GlobalID()) != nil || f.onServer(t, middle.GlobalID()) {
		t.Error("evicted snapshot still alive")
	}
}

func TestTemporalEvictAndClear(t *testing.T) {
	f := newFixture(t)
	temporal := newTemporal(t, f, 8)
	first, second := f.sphere(t), f.sphere(t)
	for _, time := range []float64{0, 1, 2} {
		temporal.Capture(first, time)
	}
	temporal.Capture(second, 0)

	evicted, err := temporal.Evict(first.GlobalID())
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if evicted != 3 || temporal.Len() != 1 || len(temporal.Times(first.GlobalID())) != 0 {
		t.Errorf("after Evict: evicted %d, Len %d", evicted, temporal.Len())
	}
	if err := temporal.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if temporal.Len() != 0 || f.registry.NumberOfProxies(registry.TemporalCacheGroup) != 0 {
		t.Error("Clear left snapshots behind")
	}
	if _, err := temporal.Capture(nil, 0); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Errorf("Capture(nil): err = %v", err)
	}
}

func TestSnapshotNames(t *testing.T) {
	for _, time := range []float64{0, 0.25, -1, 1e9} {
		id, got, err := pool.ParseSnapshotName(pool.SnapshotName(7, time))
		if err != nil || id != 7 || got != time {
			t.Errorf("round trip of time %g = %d %g %v", time, id, got, err)
		}
	}
	for _, bad := range []string{"7", "x@1", "7@y"} {
		if _, _, err := pool.ParseSnapshotName(bad); err == nil {
			t.Errorf("ParseSnapshotName(%q) succeeded", bad)
		}
	}
}

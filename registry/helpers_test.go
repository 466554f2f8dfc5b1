// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry_test

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/registry"
)

const testDefinitions = `<ServerManagerConfiguration>
  <ProxyGroup name="sources">
    <SourceProxy name="SphereSource" label="Sphere" class="vtkSphereSource">
      <DoubleVectorProperty name="Radius" number_of_elements="1" default_values="0.5"/>
    </SourceProxy>
  </ProxyGroup>
  <ProxyGroup name="filters">
    <SourceProxy name="Shrink" label="Shrink" class="vtkShrinkFilter">
      <InputProperty name="Input"/>
      <DoubleVectorProperty name="ShrinkFactor" number_of_elements="1" default_values="0.5"/>
    </SourceProxy>
  </ProxyGroup>
  <ProxyGroup name="views">
    <ViewProxy name="RenderView" label="RenderView" class="vtkView">
      <IntVectorProperty name="ViewSize" number_of_elements="2" default_values="300 300"/>
    </ViewProxy>
  </ProxyGroup>
  <ProxyGroup name="settings">
    <SettingsProxy name="GeneralSettings" label="General" class="vtkSettings" processes="client">
      <IntVectorProperty name="AutoApply" number_of_elements="1" default_values="0"/>
    </SettingsProxy>
  </ProxyGroup>
</ServerManagerConfiguration>`

// fakeSession is an in-memory session. server is shared between
// sessions that simulate clients of one server.
type fakeSession struct {
	next     message.ID
	objects  map[message.ID]proxy.RemoteObject
	retained map[message.ID]int
	pinned   map[message.ID]int
	server   map[message.ID]*message.Message
	pushes   []*message.Message
}

func newFakeSession(first message.ID, server map[message.ID]*message.Message) *fakeSession {
	if server == nil {
		server = make(map[message.ID]*message.Message)
	}
	return &fakeSession{
		next:     first - 1,
		objects:  make(map[message.ID]proxy.RemoteObject),
		retained: make(map[message.ID]int),
		pinned:   make(map[message.ID]int),
		server:   server,
	}
}

func (s *fakeSession) NextGlobalID() message.ID { s.next++; return s.next }
func (s *fakeSession) RegisterRemoteObject(o proxy.RemoteObject) {
	s.objects[o.GlobalID()] = o
}
func (s *fakeSession) UnregisterRemoteObject(id message.ID)           { delete(s.objects, id) }
func (s *fakeSession) RemoteObject(id message.ID) proxy.RemoteObject { return s.objects[id] }
func (s *fakeSession) Retain(id message.ID)                          { s.retained[id]++ }
func (s *fakeSession) Release(id message.ID)                         { s.retained[id]-- }
func (s *fakeSession) Pin(id message.ID) func() {
	s.pinned[id]++
	return func() { s.pinned[id]-- }
}
func (s *fakeSession) PushState(m *message.Message) error {
	s.server[m.GlobalID] = m.Clone()
	s.pushes = append(s.pushes, m.Clone())
	return nil
}
func (s *fakeSession) PullState(id message.ID) (*message.Message, error) {
	return s.server[id].Clone(), nil
}

// pipelinePushes counts pushes of the registry's own state.
func (s *fakeSession) pipelinePushes() int {
	count := 0
	for _, m := range s.pushes {
		if m.GlobalID == message.RegistryID {
			count++
		}
	}
	return count
}

func newRegistry(t *testing.T, session *fakeSession) *registry.Registry {
	t.Helper()
	definitions := proxy.NewDefinitionManager()
	if err := definitions.LoadConfiguration(strings.NewReader(testDefinitions)); err != nil {
		t.Fatal(err)
	}
	r, err := registry.New(registry.Config{Session: session, Definitions: definitions})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func mustProxy(t *testing.T, r *registry.Registry, group, name string) *proxy.Proxy {
	t.Helper()
	p, err := r.NewProxy(group, name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mustRegister(t *testing.T, r *registry.Registry, group, name string, p *proxy.Proxy) string {
	t.Helper()
	registered, err := r.RegisterProxy(group, name, p)
	if err != nil {
		t.Fatalf("RegisterProxy(%s, %s): %v", group, name, err)
	}
	return registered
}

// recorder collects registry notifications.
type recorder struct {
	notifications []registry.Notification
}

func record(r *registry.Registry) *recorder {
	rec := &recorder{}
	r.Subscribe(func(n registry.Notification) { rec.notifications = append(rec.notifications, n) })
	return rec
}

func (rec *recorder) count(kind registry.NotificationKind) int {
	count := 0
	for _, n := range rec.notifications {
		if n.Kind == kind {
			count++
		}
	}
	return count
}

func tupleNames(tuples []registry.Tuple) []string {
	out := make([]string, len(tuples))
	for i, t := range tuples {
		out[i] = t.Group + "/" + t.Name
	}
	return out
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collab_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/bureau-foundation/proxysync/collab"
	"github.com/bureau-foundation/proxysync/lib/testutil"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/server"
	"github.com/bureau-foundation/proxysync/session"
	"github.com/bureau-foundation/proxysync/store"
)

type peer struct {
	session *session.Session
	manager *collab.Manager
	events  []collab.Event
}

func (p *peer) count(kind collab.EventKind) int {
	n := 0
	for _, event := range p.events {
		if event.Kind == kind {
			n++
		}
	}
	return n
}

func (p *peer) last(kind collab.EventKind) collab.Event {
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Kind == kind {
			return p.events[i]
		}
	}
	return collab.Event{}
}

// await pumps notifications into p until done holds.
func (p *peer) await(t *testing.T, ctx context.Context, done func() bool, what string) {
	t.Helper()
	testutil.RequireEventually(t, ctx, p.session.WaitNotification, done, what)
}

func newServer(t *testing.T) (*server.Server, context.Context) {
	t.Helper()
	ctx := testutil.Context(t, 0)
	srv, err := server.New(ctx, server.Config{Store: store.NewMemory()})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv, ctx
}

func join(t *testing.T, ctx context.Context, srv *server.Server, label string) *peer {
	t.Helper()
	s, err := session.Create(ctx, session.Config{Conn: srv.LocalConn(ctx), UserLabel: label})
	if err != nil {
		t.Fatalf("session.Create(%q): %v", label, err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	p := &peer{session: s, manager: collab.New(s, nil)}
	p.manager.Subscribe(func(e collab.Event) { p.events = append(p.events, e) })
	return p
}

// flush sends a marker from sender and waits until every receiver has
// seen it. Notifications from one sender arrive in order, so anything
// sender broadcast earlier has been handled too.
func flush(t *testing.T, ctx context.Context, sender *peer, receivers ...*peer) {
	t.Helper()
	before := make([]int, len(receivers))
	for i, r := range receivers {
		before[i] = r.count(collab.Notification)
	}
	if err := sender.manager.SendToOtherClients(&message.Message{}); err != nil {
		t.Fatalf("sending marker: %v", err)
	}
	for i, r := range receivers {
		r.await(t, ctx, func() bool { return r.count(collab.Notification) > before[i] }, "marker")
	}
}

func TestRosterTracksJoins(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")

	if got := alice.manager.ConnectedClients(); got != 1 {
		t.Fatalf("ConnectedClients = %d, want 1", got)
	}
	if !alice.manager.IsMaster() {
		t.Fatalf("first client is not the master (master %d, self %d)",
			alice.manager.MasterID(), alice.manager.ClientID())
	}

	bob := join(t, ctx, srv, "bob")
	alice.await(t, ctx, func() bool { return alice.manager.ConnectedClients() == 2 }, "bob joining")

	if got := alice.manager.UserLabel(bob.session.ClientID()); got != "bob" {
		t.Errorf("UserLabel(bob) = %q, want %q", got, "bob")
	}
	if got := bob.manager.MasterID(); got != alice.session.ClientID() {
		t.Errorf("bob sees master %d, want %d", got, alice.session.ClientID())
	}
	if bob.manager.IsMaster() {
		t.Error("bob reports being master")
	}
	if got := alice.manager.UserID(1); got != bob.session.ClientID() {
		t.Errorf("UserID(1) = %d, want %d", got, bob.session.ClientID())
	}
	if got := alice.manager.UserID(5); got != 0 {
		t.Errorf("UserID(5) = %d, want 0", got)
	}
	if alice.count(collab.UsersChanged) == 0 {
		t.Error("no UsersChanged event on join")
	}
}

func TestSendToOtherClientsExcludesSender(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	bob := join(t, ctx, srv, "bob")
	carol := join(t, ctx, srv, "carol")

	state := &message.Message{Properties: []message.Property{message.Strings("Text", "hello")}}
	if err := alice.manager.SendToOtherClients(state); err != nil {
		t.Fatalf("SendToOtherClients: %v", err)
	}

	for _, p := range []*peer{bob, carol} {
		p.await(t, ctx, func() bool { return p.count(collab.Notification) == 1 }, "notification")
		event := p.last(collab.Notification)
		if event.Sender != alice.session.ClientID() {
			t.Errorf("sender = %d, want %d", event.Sender, alice.session.ClientID())
		}
		text, ok := event.Message.Property("Text")
		if !ok || len(text.Strings) != 1 || text.Strings[0] != "hello" {
			t.Errorf("received property %+v, want Text=hello", text)
		}
	}

	// Bob's marker reaches alice only after anything queued before it.
	flush(t, ctx, bob, alice)
	if got := alice.count(collab.Notification); got != 1 {
		t.Fatalf("alice received %d notifications, want only bob's marker", got)
	}
	if alice.last(collab.Notification).Sender != bob.session.ClientID() {
		t.Fatal("alice observed her own broadcast")
	}
	if len(state.Extensions) != 0 {
		t.Error("SendToOtherClients modified the caller's message")
	}
}

func TestPromoteToMaster(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	bob := join(t, ctx, srv, "bob")

	if err := alice.manager.PromoteToMaster(bob.session.ClientID()); err != nil {
		t.Fatalf("PromoteToMaster: %v", err)
	}
	if alice.manager.IsMaster() {
		t.Error("alice is still master after promoting bob")
	}
	bob.await(t, ctx, bob.manager.IsMaster, "bob promoted")
	if bob.last(collab.MasterChanged).Sender != bob.session.ClientID() {
		t.Errorf("MasterChanged event = %+v", bob.last(collab.MasterChanged))
	}

	if err := alice.manager.PromoteToMaster(999); err == nil {
		t.Error("promoting an unknown client succeeded")
	}
}

func TestMasterPromotedOnDisconnect(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	bob := join(t, ctx, srv, "bob")
	carol := join(t, ctx, srv, "carol")

	if err := alice.session.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	carol.await(t, ctx, func() bool { return carol.manager.ConnectedClients() == 2 }, "alice leaving")
	if got := carol.manager.MasterID(); got != bob.session.ClientID() {
		t.Errorf("master after disconnect = %d, want lowest remaining id %d", got, bob.session.ClientID())
	}
	bob.await(t, ctx, bob.manager.IsMaster, "bob promoted")
}

func TestSetUserLabel(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	bob := join(t, ctx, srv, "bob")
	bobID := bob.session.ClientID()

	if err := bob.manager.SetUserLabel("robert"); err != nil {
		t.Fatalf("SetUserLabel: %v", err)
	}
	alice.await(t, ctx, func() bool { return alice.manager.UserLabel(bobID) == "robert" }, "rename")

	if err := alice.manager.SetUserLabelFor(bobID, "bobby"); err != nil {
		t.Fatalf("SetUserLabelFor: %v", err)
	}
	bob.await(t, ctx, func() bool { return bob.manager.UserLabel(bobID) == "bobby" }, "remote rename")
}

func TestUpdateUserInformation(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	join(t, ctx, srv, "bob")

	// Without pumping notifications alice still has the hello roster.
	if got := alice.manager.ConnectedClients(); got != 1 {
		t.Fatalf("ConnectedClients before update = %d, want 1", got)
	}
	if err := alice.manager.UpdateUserInformation(); err != nil {
		t.Fatalf("UpdateUserInformation: %v", err)
	}
	if got := alice.manager.ConnectedClients(); got != 2 {
		t.Fatalf("ConnectedClients after update = %d, want 2", got)
	}
}

func TestFollowCamera(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	bob := join(t, ctx, srv, "bob")
	carol := join(t, ctx, srv, "carol")
	bobID := bob.session.ClientID()

	// The master's choice propagates.
	if err := alice.manager.FollowUser(bobID); err != nil {
		t.Fatalf("FollowUser: %v", err)
	}
	carol.await(t, ctx, func() bool { return carol.manager.FollowedUser() == bobID }, "follow-camera")

	payload := []byte{1, 2, 3}
	if err := bob.manager.ShareCamera(payload); err != nil {
		t.Fatalf("ShareCamera: %v", err)
	}
	for _, p := range []*peer{alice, carol} {
		p.await(t, ctx, func() bool { return p.count(collab.CameraChanged) == 1 }, "camera update")
		if got := p.last(collab.CameraChanged).Payload; !bytes.Equal(got, payload) {
			t.Errorf("camera payload = %v, want %v", got, payload)
		}
	}

	// Camera updates from a user nobody follows are dropped.
	if err := carol.manager.ShareCamera([]byte{9}); err != nil {
		t.Fatalf("ShareCamera: %v", err)
	}
	flush(t, ctx, carol, alice)
	if got := alice.count(collab.CameraChanged); got != 1 {
		t.Errorf("alice surfaced %d camera updates, want 1", got)
	}

	// A non-master follow stays local.
	if err := carol.manager.FollowUser(alice.session.ClientID()); err != nil {
		t.Fatalf("FollowUser: %v", err)
	}
	flush(t, ctx, carol, bob)
	if got := bob.manager.FollowedUser(); got != bobID {
		t.Errorf("bob follows %d after carol's local follow, want %d", got, bobID)
	}
}

func TestFollowedUserClearedOnLeave(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	bob := join(t, ctx, srv, "bob")

	alice.await(t, ctx, func() bool { return alice.manager.ConnectedClients() == 2 }, "bob joining")
	if err := alice.manager.FollowUser(bob.session.ClientID()); err != nil {
		t.Fatalf("FollowUser: %v", err)
	}
	if err := bob.session.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	alice.await(t, ctx, func() bool { return alice.manager.FollowedUser() == 0 }, "followed user leaving")
}

func TestFullState(t *testing.T) {
	srv, ctx := newServer(t)
	alice := join(t, ctx, srv, "alice")
	bob := join(t, ctx, srv, "bob")
	alice.await(t, ctx, func() bool { return alice.manager.ConnectedClients() == 2 }, "bob joining")

	state := alice.manager.FullState()
	if state.GlobalID != message.CollaborationID || state.ClientClass != collab.ClientClass {
		t.Fatalf("FullState header = %d %q", state.GlobalID, state.ClientClass)
	}
	users, err := message.Records[message.UserRecord](state, message.ExtensionUser)
	if err != nil {
		t.Fatalf("reading user records: %v", err)
	}
	if len(users) != 2 || users[1].Name != "bob" {
		t.Fatalf("user records = %+v", users)
	}

	if alice.session.RemoteObject(message.CollaborationID) != alice.manager {
		t.Error("manager is not registered at the collaboration id")
	}

	// Loading the roster state into a stale manager brings it up to date.
	if err := bob.manager.LoadState(state, nil); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got := bob.manager.ConnectedClients(); got != 2 {
		t.Errorf("ConnectedClients after LoadState = %d, want 2", got)
	}
}

func TestEventKindString(t *testing.T) {
	for kind, want := range map[collab.EventKind]string{
		collab.Notification:  "notification",
		collab.CameraChanged: "camera-changed",
		collab.EventKind(42): "collab-event(42)",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}

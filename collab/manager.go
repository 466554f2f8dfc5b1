// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/transport"
)

// ClientClass identifies collaboration states on the wire.
const ClientClass = "CollaborationManager"

// Event tags carried in [message.CollaborationRecord].Event.
const (
	EventNotification  = "notification"
	EventUserName      = "username"
	EventUserList      = "user-list"
	EventMaster        = "master-user"
	EventFollowCamera  = "follow-camera"
	EventCameraChanged = "camera-changed"
)

// Channel is the part of a session the manager talks through.
// *session.Session implements it.
type Channel interface {
	ClientID() uint32
	InitialRoster() ([]message.UserRecord, uint32)
	Broadcast(state *message.Message) error
	FetchRoster() ([]message.UserRecord, uint32, error)
	SetUserLabel(clientID uint32, label string) error
	PromoteToMaster(clientID uint32) error
	Subscribe(fn func(*transport.Envelope)) (cancel func())
	RegisterRemoteObject(object proxy.RemoteObject)
}

// EventKind tags an [Event].
type EventKind uint8

const (
	// Notification carries a message another client sent with
	// SendToOtherClients.
	Notification EventKind = iota + 1

	// UsersChanged fires when a user joins, leaves or is renamed.
	UsersChanged

	// MasterChanged fires when the master changes.
	MasterChanged

	// FollowChanged fires when the followed user changes.
	FollowChanged

	// CameraChanged carries a camera update from the followed user.
	CameraChanged
)

func (k EventKind) String() string {
	switch k {
	case Notification:
		return "notification"
	case UsersChanged:
		return "users-changed"
	case MasterChanged:
		return "master-changed"
	case FollowChanged:
		return "follow-changed"
	case CameraChanged:
		return "camera-changed"
	default:
		return fmt.Sprintf("collab-event(%d)", uint8(k))
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind   EventKind
	Sender uint32

	// Message is set for Notification.
	Message *message.Message

	// Payload is the application camera data for CameraChanged.
	Payload []byte
}

type listener struct {
	token int
	fn    func(Event)
}

// Manager coordinates collaborating clients.
type Manager struct {
	channel Channel
	logger  *slog.Logger

	self     uint32
	users    []message.UserRecord
	master   uint32
	followed uint32

	listeners   []listener
	nextToken   int
	unsubscribe func()
}

// New returns a manager over channel and registers it at
// [message.CollaborationID].
func New(channel Channel, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{channel: channel, logger: logger, self: channel.ClientID()}
	m.users, m.master = channel.InitialRoster()
	m.unsubscribe = channel.Subscribe(m.handle)
	channel.RegisterRemoteObject(m)
	return m
}

// Close stops listening to the session.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Subscribe registers fn for manager events.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.nextToken++
	token := m.nextToken
	m.listeners = append(m.listeners, listener{token: token, fn: fn})
	return func() {
		m.listeners = slices.DeleteFunc(m.listeners, func(l listener) bool { return l.token == token })
	}
}

func (m *Manager) emit(event Event) {
	for _, l := range slices.Clone(m.listeners) {
		l.fn(event)
	}
}

// SendToOtherClients broadcasts state to every other client. A state
// without a collaboration header is sent as a plain notification.
func (m *Manager) SendToOtherClients(state *message.Message) error {
	if state == nil {
		m.logger.Error("SendToOtherClients called with a nil message")
		return nil
	}
	out := state.Clone()
	if out.GlobalID == message.NullID {
		out.GlobalID = message.CollaborationID
	}
	if !out.HasExtension(message.ExtensionCollaboration) {
		if err := message.Append(out, message.ExtensionCollaboration,
			message.CollaborationRecord{Event: EventNotification, Sender: m.self}); err != nil {
			return err
		}
	}
	return m.channel.Broadcast(out)
}

func (m *Manager) broadcastEvent(record message.CollaborationRecord) error {
	record.Sender = m.self
	state := &message.Message{GlobalID: message.CollaborationID, Location: message.Client, ClientClass: ClientClass}
	if err := message.Append(state, message.ExtensionCollaboration, record); err != nil {
		return err
	}
	return m.channel.Broadcast(state)
}

// ClientID returns this client's id.
func (m *Manager) ClientID() uint32 { return m.self }

// MasterID returns the master's client id, zero if unknown.
func (m *Manager) MasterID() uint32 { return m.master }

// IsMaster reports whether this client is the master.
func (m *Manager) IsMaster() bool { return m.master != 0 && m.master == m.self }

// PromoteToMaster makes clientID the master for every client.
func (m *Manager) PromoteToMaster(clientID uint32) error {
	if err := m.channel.PromoteToMaster(clientID); err != nil {
		return fmt.Errorf("promoting client %d: %w", clientID, err)
	}
	m.setMaster(clientID)
	return nil
}

// FollowUser shows clientID's camera on this client. When this client
// is the master every client follows clientID.
func (m *Manager) FollowUser(clientID uint32) error {
	m.setFollowed(clientID)
	if m.IsMaster() {
		return m.broadcastEvent(message.CollaborationRecord{Event: EventFollowCamera, FollowCamera: clientID})
	}
	return nil
}

// FollowedUser returns the followed client id, zero for none.
func (m *Manager) FollowedUser() uint32 { return m.followed }

// ShareCamera broadcasts a camera update. Only clients following this
// client surface it.
func (m *Manager) ShareCamera(payload []byte) error {
	return m.broadcastEvent(message.CollaborationRecord{Event: EventCameraChanged, Payload: payload})
}

// SetUserLabel renames this client.
func (m *Manager) SetUserLabel(label string) error {
	return m.SetUserLabelFor(m.self, label)
}

// SetUserLabelFor renames clientID.
func (m *Manager) SetUserLabelFor(clientID uint32, label string) error {
	if err := m.channel.SetUserLabel(clientID, label); err != nil {
		return fmt.Errorf("renaming client %d: %w", clientID, err)
	}
	return nil
}

// UserLabel returns the label of clientID.
func (m *Manager) UserLabel(clientID uint32) string {
	for _, user := range m.users {
		if user.ClientID == clientID {
			return user.Name
		}
	}
	return ""
}

// ConnectedClients returns the roster size, this client included.
func (m *Manager) ConnectedClients() int { return len(m.users) }

// UserID returns the id of the index-th user in client id order, or
// zero when index is out of range.
func (m *Manager) UserID(index int) uint32 {
	if index < 0 || index >= len(m.users) {
		return 0
	}
	return m.users[index].ClientID
}

// UpdateUserInformation pulls the roster from the server.
func (m *Manager) UpdateUserInformation() error {
	users, master, err := m.channel.FetchRoster()
	if err != nil {
		return fmt.Errorf("fetching roster: %w", err)
	}
	m.applyRoster(users, master)
	return nil
}

func (m *Manager) handle(env *transport.Envelope) {
	switch env.Op {
	case transport.OpRoster:
		m.applyRoster(env.Roster, env.Master)
	case transport.OpCollaboration:
		m.receive(env.ClientID, env.State)
	}
}

func (m *Manager) receive(sender uint32, state *message.Message) {
	if state == nil {
		return
	}
	records, err := message.Records[message.CollaborationRecord](state, message.ExtensionCollaboration)
	if err != nil {
		m.logger.Warn("dropping malformed collaboration message", "sender", sender, "error", err)
		return
	}
	event := EventNotification
	var record message.CollaborationRecord
	if len(records) > 0 {
		record = records[0]
		event = record.Event
	}

	switch event {
	case EventFollowCamera:
		if sender == m.master {
			m.setFollowed(record.FollowCamera)
		}
	case EventCameraChanged:
		if sender == m.followed {
			m.emit(Event{Kind: CameraChanged, Sender: sender, Payload: record.Payload})
		}
	default:
		m.emit(Event{Kind: Notification, Sender: sender, Message: state})
	}
}

func (m *Manager) applyRoster(users []message.UserRecord, master uint32) {
	sorted := slices.Clone(users)
	slices.SortFunc(sorted, func(a, b message.UserRecord) int { return cmp.Compare(a.ClientID, b.ClientID) })
	if !slices.Equal(sorted, m.users) {
		m.users = sorted
		m.emit(Event{Kind: UsersChanged})
	}
	m.setMaster(master)
	if m.followed != 0 && !m.hasUser(m.followed) {
		m.setFollowed(0)
	}
}

func (m *Manager) hasUser(clientID uint32) bool {
	return slices.ContainsFunc(m.users, func(u message.UserRecord) bool { return u.ClientID == clientID })
}

func (m *Manager) setMaster(master uint32) {
	if master != m.master {
		m.master = master
		m.emit(Event{Kind: MasterChanged, Sender: master})
	}
}

func (m *Manager) setFollowed(clientID uint32) {
	if clientID != m.followed {
		m.followed = clientID
		m.emit(Event{Kind: FollowChanged, Sender: clientID})
	}
}

// GlobalID returns [message.CollaborationID].
func (m *Manager) GlobalID() message.ID { return message.CollaborationID }

// Location reports that the manager lives on the client.
func (m *Manager) Location() message.Location { return message.Client }

// FullState returns the roster as a state message.
func (m *Manager) FullState() *message.Message {
	state := &message.Message{GlobalID: message.CollaborationID, Location: message.Client, ClientClass: ClientClass}
	m.appendRecord(state, message.ExtensionCollaboration, message.CollaborationRecord{
		Event:        EventUserList,
		Sender:       m.self,
		Master:       m.master,
		FollowCamera: m.followed,
	})
	for _, user := range m.users {
		m.appendRecord(state, message.ExtensionUser, user)
	}
	return state
}

func (m *Manager) appendRecord(state *message.Message, name string, record any) {
	if err := message.Append(state, name, record); err != nil {
		m.logger.Error("encoding collaboration record failed", "extension", name, "error", err)
	}
}

// LoadState applies a roster state.
func (m *Manager) LoadState(state *message.Message, _ proxy.Locator) error {
	users, err := message.Records[message.UserRecord](state, message.ExtensionUser)
	if err != nil {
		return fmt.Errorf("collaboration state: %w", err)
	}
	headers, err := message.Records[message.CollaborationRecord](state, message.ExtensionCollaboration)
	if err != nil {
		return fmt.Errorf("collaboration state: %w", err)
	}
	master := m.master
	if len(headers) > 0 {
		master = headers[0].Master
	}
	m.applyRoster(users, master)
	return nil
}

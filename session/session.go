// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/proxy"
	"github.com/bureau-foundation/proxysync/transport"
)

// Defaults for zero Config fields.
const (
	DefaultIDChunk     = 256
	DefaultCallTimeout = 30 * time.Second
)

var _ proxy.Session = (*Session)(nil)

// StateRecorder observes successful pushes. before is the state last
// pushed or received for the object, nil if none.
type StateRecorder interface {
	StatePushed(before, after *message.Message)
}

// DestroyRecorder is implemented by recorders that also observe
// object destruction. last is the object's last known state.
type DestroyRecorder interface {
	StateDestroyed(last *message.Message)
}

// Config holds the parameters of a session.
type Config struct {
	// Conn is the server connection. Required. The session owns it.
	Conn transport.Conn

	// UserLabel is announced to collaborators.
	UserLabel string

	// IDChunk is how many ids are reserved per round trip.
	IDChunk uint32

	// CallTimeout bounds each round trip.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// Session is one client's view of a shared session.
type Session struct {
	conn    transport.Conn
	logger  *slog.Logger
	chunk   uint32
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	clientID uint32
	key      string
	roster   []message.UserRecord
	master   uint32

	// [nextID, lastID] is the unused part of the reserved chunk.
	nextID, lastID message.ID

	objects map[message.ID]proxy.RemoteObject
	refs    map[message.ID]int
	pins    map[message.ID]int
	doomed  map[message.ID]bool
	states  map[message.ID]*message.Message

	// consumed counts notifications taken from the connection.
	consumed uint64

	recorder  StateRecorder
	listeners []listener
	nextToken uint64
	closed    bool
}

type listener struct {
	token uint64
	fn    func(*transport.Envelope)
}

// Create opens a session over cfg.Conn.
func Create(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Conn == nil {
		return nil, errors.New("session: connection is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		conn:    cfg.Conn,
		logger:  logger,
		chunk:   cfg.IDChunk,
		timeout: cfg.CallTimeout,
		objects: make(map[message.ID]proxy.RemoteObject),
		refs:    make(map[message.ID]int),
		pins:    make(map[message.ID]int),
		doomed:  make(map[message.ID]bool),
		states:  make(map[message.ID]*message.Message),
	}
	if s.chunk == 0 {
		s.chunk = DefaultIDChunk
	}
	if s.timeout <= 0 {
		s.timeout = DefaultCallTimeout
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	reply, err := cfg.Conn.Call(ctx, &transport.Envelope{Op: transport.OpHello, Label: cfg.UserLabel})
	if err != nil {
		s.cancel()
		cfg.Conn.Close()
		return nil, fmt.Errorf("opening session: %w", err)
	}
	s.clientID = reply.ClientID
	s.key = reply.SessionKey
	s.roster = reply.Roster
	s.master = reply.Master
	s.logger = logger.With("client", s.clientID)
	s.logger.Info("session opened", "session_key", s.key, "master", s.master)
	return s, nil
}

// Shutdown releases every object and closes the connection. Objects
// are dropped locally only; server-side state stays for the other
// clients.
func (s *Session) Shutdown(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	clear(s.objects)
	clear(s.refs)
	clear(s.pins)
	clear(s.doomed)
	clear(s.states)
	s.listeners = nil
	s.cancel()
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing session connection: %w", err)
	}
	s.logger.Info("session shut down")
	return nil
}

// ClientID is the server-assigned id of this client.
func (s *Session) ClientID() uint32 { return s.clientID }

// SessionKey is the server-assigned key of this connection.
func (s *Session) SessionKey() string { return s.key }

// InitialRoster returns the roster and master received at hello.
func (s *Session) InitialRoster() ([]message.UserRecord, uint32) {
	return slices.Clone(s.roster), s.master
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

func (s *Session) call(op transport.Op, req *transport.Envelope) (*transport.Envelope, error) {
	if s.closed {
		return nil, transport.ErrClosed
	}
	req.Op = op
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return s.conn.Call(ctx, req)
}

// NextGlobalID returns an unused global id, reserving a new chunk
// from the server when the current one is spent. It returns NullID
// and logs when the server cannot be reached.
func (s *Session) NextGlobalID() message.ID {
	if s.nextID == message.NullID || s.nextID > s.lastID {
		reply, err := s.call(transport.OpReserveIDs, &transport.Envelope{Count: s.chunk})
		if err != nil {
			s.logger.Error("reserving global ids", "error", err)
			return message.NullID
		}
		s.nextID = reply.ID
		s.lastID = reply.ID + message.ID(reply.Count) - 1
	}
	id := s.nextID
	s.nextID++
	return id
}

func (s *Session) RegisterRemoteObject(object proxy.RemoteObject) {
	id := object.GlobalID()
	if id == message.NullID {
		s.logger.Error("registering an object without a global id")
		return
	}
	s.objects[id] = object
}

func (s *Session) UnregisterRemoteObject(id message.ID) {
	delete(s.objects, id)
}

func (s *Session) RemoteObject(id message.ID) proxy.RemoteObject {
	return s.objects[id]
}

// Retain adds an owning handle to id.
func (s *Session) Retain(id message.ID) {
	if id == message.NullID {
		return
	}
	s.refs[id]++
}

// Release drops an owning handle. Dropping the last one destroys the
// object, or dooms it if it is pinned.
func (s *Session) Release(id message.ID) {
	count, ok := s.refs[id]
	if !ok {
		s.logger.Warn("releasing an object with no handles", "id", id)
		return
	}
	if count > 1 {
		s.refs[id] = count - 1
		return
	}
	delete(s.refs, id)
	if s.pins[id] > 0 {
		s.doomed[id] = true
		return
	}
	s.destroy(id)
}

// Pin keeps id alive until the returned function is called. Calling
// it more than once has no further effect.
func (s *Session) Pin(id message.ID) (unpin func()) {
	s.pins[id]++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		if s.pins[id]--; s.pins[id] > 0 {
			return
		}
		delete(s.pins, id)
		if s.doomed[id] {
			delete(s.doomed, id)
			if s.refs[id] == 0 {
				s.destroy(id)
			}
		}
	}
}

// References returns the owning handle count of id.
func (s *Session) References(id message.ID) int { return s.refs[id] }

// IsPinned reports whether id is pinned.
func (s *Session) IsPinned(id message.ID) bool { return s.pins[id] > 0 }

func (s *Session) destroy(id message.ID) {
	if id.IsReserved() {
		return
	}
	if r, ok := s.recorder.(DestroyRecorder); ok {
		if last := s.states[id]; last != nil {
			r.StateDestroyed(last)
		}
	}
	delete(s.objects, id)
	delete(s.states, id)
	if _, err := s.call(transport.OpDelete, &transport.Envelope{ID: id}); err != nil {
		s.logger.Error("deleting object on the server", "id", id, "error", err)
		return
	}
	s.logger.Debug("object destroyed", "id", id)
}

// SetRecorder installs r as the push observer. Nil removes it.
func (s *Session) SetRecorder(r StateRecorder) { s.recorder = r }

// PushState sends state to the server and reports it to the recorder.
func (s *Session) PushState(state *message.Message) error {
	if state == nil || state.GlobalID == message.NullID {
		return errors.New("pushing a state without a global id")
	}
	if _, err := s.call(transport.OpPush, &transport.Envelope{State: state}); err != nil {
		return err
	}
	before := s.states[state.GlobalID]
	s.states[state.GlobalID] = state.Clone()
	if s.recorder != nil {
		s.recorder.StatePushed(before, state)
	}
	return nil
}

// PullState fetches the server's state for id. It returns nil without
// error when the server holds none.
func (s *Session) PullState(id message.ID) (*message.Message, error) {
	reply, err := s.call(transport.OpPull, &transport.Envelope{ID: id})
	if err != nil {
		return nil, fmt.Errorf("pulling state %d: %w", id, err)
	}
	if reply.State != nil {
		s.states[id] = reply.State.Clone()
	}
	return reply.State, nil
}

// LastState returns a copy of the state last pushed, pulled or
// received for id.
func (s *Session) LastState(id message.ID) *message.Message {
	return s.states[id].Clone()
}

// Broadcast sends state to every other client.
func (s *Session) Broadcast(state *message.Message) error {
	_, err := s.call(transport.OpBroadcast, &transport.Envelope{State: state})
	return err
}

// FetchRoster asks the server for the connected clients and the
// master.
func (s *Session) FetchRoster() ([]message.UserRecord, uint32, error) {
	reply, err := s.call(transport.OpRoster, &transport.Envelope{})
	if err != nil {
		return nil, 0, err
	}
	return reply.Roster, reply.Master, nil
}

// SetUserLabel renames clientID; zero renames this client.
func (s *Session) SetUserLabel(clientID uint32, label string) error {
	_, err := s.call(transport.OpSetLabel, &transport.Envelope{ClientID: clientID, Label: label})
	return err
}

// PromoteToMaster makes clientID the master.
func (s *Session) PromoteToMaster(clientID uint32) error {
	_, err := s.call(transport.OpPromote, &transport.Envelope{ClientID: clientID})
	return err
}

// Subscribe registers fn for every notification, after the session
// has applied it.
func (s *Session) Subscribe(fn func(*transport.Envelope)) (cancel func()) {
	s.nextToken++
	token := s.nextToken
	s.listeners = append(s.listeners, listener{token: token, fn: fn})
	return func() {
		s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.token == token })
	}
}

// Dispatch applies one notification.
func (s *Session) Dispatch(env *transport.Envelope) {
	if env.Op == transport.OpNotify && env.State != nil {
		id := env.State.GlobalID
		s.states[id] = env.State.Clone()
		if object := s.objects[id]; object != nil {
			if err := object.LoadState(env.State.Clone(), nil); err != nil {
				s.logger.Error("applying remote state", "id", id, "sender", env.ClientID, "error", err)
			}
		}
	}
	for _, l := range slices.Clone(s.listeners) {
		l.fn(env)
	}
}

// ProcessPending dispatches every notification the connection had
// received when it was called and returns how many there were.
func (s *Session) ProcessPending() int {
	n := 0
	for target := s.conn.Received(); s.consumed < target; n++ {
		// Each of these is already read; the receive waits only for
		// the hand-off.
		env, ok := <-s.conn.Notifications()
		if !ok {
			return n
		}
		s.consumed++
		s.Dispatch(env)
	}
	return n
}

// WaitNotification blocks until one notification arrives and
// dispatches it.
func (s *Session) WaitNotification(ctx context.Context) error {
	select {
	case env, ok := <-s.conn.Notifications():
		if !ok {
			return transport.ErrClosed
		}
		s.consumed++
		s.Dispatch(env)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches notifications until ctx is done or the connection
// closes.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := s.WaitNotification(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/proxysync/lib/codec"
	"github.com/bureau-foundation/proxysync/message"
	"github.com/bureau-foundation/proxysync/store"
	"github.com/bureau-foundation/proxysync/transport"
)

// ErrUnknownClient is returned when an operation names a client that
// is not connected.
var ErrUnknownClient = errors.New("unknown client")

// outboundQueue is how many frames may wait for a slow client before
// it is disconnected.
const outboundQueue = 1024

// Config holds the parameters of a server.
type Config struct {
	// Store holds object states. Required.
	Store store.Store

	// CompressThreshold is passed to [transport.EncodeFrame].
	CompressThreshold int

	// Metrics receives server metrics. Nil registers a fresh set on a
	// private registry.
	Metrics *Metrics

	Logger *slog.Logger
}

// Server is the state server: it stores pushed states, allocates
// global ids, and fans pushes and collaboration messages out to the
// other connected clients.
type Server struct {
	store     store.Store
	threshold int
	metrics   *Metrics
	logger    *slog.Logger

	mu         sync.Mutex
	clients    map[uint32]*client
	nextClient uint32
	master     uint32
	highWater  message.ID
	digests    map[message.ID]codec.StateDigest
}

type client struct {
	id     uint32
	key    string
	label  string
	frames transport.Frames
	out    chan []byte
	gone   chan struct{}
	once   sync.Once
}

func (c *client) drop() {
	c.once.Do(func() {
		close(c.gone)
		c.frames.Close()
	})
}

// New returns a server over cfg.Store. Id allocation resumes above
// every id the store has seen.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	highWater, err := cfg.Store.HighWater(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := cfg.Store.IDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		highWater = max(highWater, ids[len(ids)-1])
	}
	highWater = max(highWater, message.ReservedMaxID)

	return &Server{
		store:     cfg.Store,
		threshold: cfg.CompressThreshold,
		metrics:   metrics,
		logger:    logger,
		clients:   make(map[uint32]*client),
		highWater: highWater,
		digests:   make(map[message.ID]codec.StateDigest),
	}, nil
}

// Handler returns an HTTP handler that upgrades requests to
// WebSocket connections and serves them.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		frames, err := transport.AcceptWebSocket(w, r)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if err := s.Serve(r.Context(), frames); err != nil {
			s.logger.Info("client connection ended", "remote", r.RemoteAddr, "error", err)
		}
	})
}

// LocalConn returns a client connected to s through an in-process
// pipe. The connection is served until ctx is done or the client is
// closed.
func (s *Server) LocalConn(ctx context.Context) *transport.Client {
	local, remote := transport.Pipe()
	go func() {
		if err := s.Serve(ctx, remote); err != nil {
			s.logger.Debug("local connection ended", "error", err)
		}
	}()
	return transport.NewClient(local, transport.ClientOptions{CompressThreshold: -1, Logger: s.logger})
}

// Serve handles one client connection until it closes or ctx is done.
// The first request must be a hello.
func (s *Server) Serve(ctx context.Context, frames transport.Frames) error {
	defer frames.Close()

	frame, err := frames.ReadFrame()
	if err != nil {
		return err
	}
	hello, err := transport.DecodeFrame(frame)
	if err != nil {
		return err
	}
	if hello.Op != transport.OpHello {
		reply := replyTo(hello)
		reply.Error = &transport.RemoteError{Code: transport.CodeNotHello, Message: "first request must be hello"}
		if frame, err := transport.EncodeFrame(reply, s.threshold); err == nil {
			frames.WriteFrame(frame)
		}
		return fmt.Errorf("client sent %s before hello", hello.Op)
	}

	c := s.connect(hello.Label, frames)
	logger := s.logger.With("client", c.id)
	logger.Info("client connected", "label", c.label)
	defer func() {
		s.disconnect(c)
		logger.Info("client disconnected")
	}()

	go s.writeLoop(c, logger)

	reply := replyTo(hello)
	reply.ClientID = c.id
	reply.SessionKey = c.key
	reply.Roster, reply.Master = s.roster()
	s.send(c, reply)
	s.metrics.Requests.WithLabelValues(transport.OpHello.String(), "ok").Inc()
	s.broadcastRoster(c.id)

	stop := context.AfterFunc(ctx, c.drop)
	defer stop()

	for {
		frame, err := frames.ReadFrame()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		req, err := transport.DecodeFrame(frame)
		if err != nil {
			logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		reply := s.handle(ctx, c, req)
		status := "ok"
		if reply.Error != nil {
			status = "error"
			logger.Warn("request failed", "op", req.Op, "code", reply.Error.Code, "error", reply.Error.Message)
		}
		s.metrics.Requests.WithLabelValues(req.Op.String(), status).Inc()
		s.send(c, reply)
	}
}

func replyTo(req *transport.Envelope) *transport.Envelope {
	return &transport.Envelope{Op: req.Op, Seq: req.Seq, Reply: true}
}

func remoteError(code string, err error) *transport.RemoteError {
	return &transport.RemoteError{Code: code, Message: err.Error()}
}

func (s *Server) handle(ctx context.Context, c *client, req *transport.Envelope) *transport.Envelope {
	reply := replyTo(req)
	switch req.Op {
	case transport.OpReserveIDs:
		first, err := s.ReserveIDs(ctx, req.Count)
		if err != nil {
			reply.Error = remoteError(transport.CodeBadRequest, err)
			break
		}
		reply.ID = first
		reply.Count = req.Count

	case transport.OpPush:
		if err := s.push(ctx, c, req.State); err != nil {
			reply.Error = remoteError(transport.CodeBadRequest, err)
		}

	case transport.OpPull:
		state, err := s.Pull(ctx, req.ID)
		if err != nil {
			reply.Error = remoteError(transport.CodeInternal, err)
			break
		}
		reply.State = state

	case transport.OpDelete:
		if err := s.Delete(ctx, req.ID); err != nil {
			reply.Error = remoteError(transport.CodeBadRequest, err)
		}

	case transport.OpBroadcast:
		if req.State == nil {
			reply.Error = &transport.RemoteError{Code: transport.CodeBadRequest, Message: "broadcast without a message"}
			break
		}
		s.fanOut(c.id, &transport.Envelope{Op: transport.OpCollaboration, ClientID: c.id, State: req.State})

	case transport.OpRoster:
		reply.Roster, reply.Master = s.roster()

	case transport.OpSetLabel:
		target := req.ClientID
		if target == 0 {
			target = c.id
		}
		if err := s.setLabel(target, req.Label); err != nil {
			reply.Error = remoteError(transport.CodeUnknownClient, err)
			break
		}
		s.broadcastRoster(0)

	case transport.OpPromote:
		if err := s.promote(req.ClientID); err != nil {
			reply.Error = remoteError(transport.CodeUnknownClient, err)
			break
		}
		s.broadcastRoster(0)

	default:
		reply.Error = &transport.RemoteError{Code: transport.CodeUnknownOp, Message: req.Op.String()}
	}
	return reply
}

// ReserveIDs allocates count consecutive global ids and returns the
// first.
func (s *Server) ReserveIDs(ctx context.Context, count uint32) (message.ID, error) {
	if count == 0 {
		return message.NullID, errors.New("reserving zero ids")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(s.highWater)+uint64(count) > uint64(^message.ID(0)) {
		return message.NullID, fmt.Errorf("id space exhausted above %d", s.highWater)
	}
	first := s.highWater + 1
	last := s.highWater + message.ID(count)
	if err := s.store.SetHighWater(ctx, last); err != nil {
		return message.NullID, err
	}
	s.highWater = last
	s.metrics.ReservedIDs.Add(float64(count))
	return first, nil
}

// push stores state and forwards it to every client except the
// sender. A state identical to the stored one is acknowledged but
// neither stored nor forwarded.
func (s *Server) push(ctx context.Context, sender *client, state *message.Message) error {
	if state == nil || state.GlobalID == message.NullID {
		return errors.New("push without a global id")
	}
	encoded, err := state.Encode()
	if err != nil {
		return err
	}
	digest := codec.DigestBytes(encoded)

	s.mu.Lock()
	if s.digests[state.GlobalID] == digest {
		s.mu.Unlock()
		s.metrics.DuplicatePushes.Inc()
		return nil
	}
	s.digests[state.GlobalID] = digest
	s.mu.Unlock()

	if err := s.store.Put(ctx, state.GlobalID, encoded); err != nil {
		// Nothing was stored, so a retry of the same state must not
		// be taken for a duplicate.
		s.mu.Lock()
		if s.digests[state.GlobalID] == digest {
			delete(s.digests, state.GlobalID)
		}
		s.mu.Unlock()
		return err
	}
	s.metrics.Pushes.Inc()
	s.fanOut(sender.id, &transport.Envelope{Op: transport.OpNotify, ClientID: sender.id, State: state})
	return nil
}

// Pull returns the stored state of id, or nil when there is none.
func (s *Server) Pull(ctx context.Context, id message.ID) (*message.Message, error) {
	encoded, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state, err := message.Decode(encoded)
	if err != nil {
		notation, diagErr := codec.Diagnose(encoded)
		if diagErr != nil {
			notation = fmt.Sprintf("undecodable CBOR: %v", diagErr)
		}
		s.logger.Error("stored state does not decode", "id", id, "error", err, "cbor", notation)
		return nil, fmt.Errorf("decoding stored state %d: %w", id, err)
	}
	return state, nil
}

// Delete destroys the stored state of id. Reserved ids cannot be
// deleted.
func (s *Server) Delete(ctx context.Context, id message.ID) error {
	if id == message.NullID || id.IsReserved() {
		return fmt.Errorf("object %d cannot be deleted", id)
	}
	s.mu.Lock()
	delete(s.digests, id)
	s.mu.Unlock()
	return s.store.Delete(ctx, id)
}

func (s *Server) connect(label string, frames transport.Frames) *client {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClient++
	c := &client{
		id:     s.nextClient,
		key:    uuid.NewString(),
		label:  label,
		frames: frames,
		out:    make(chan []byte, outboundQueue),
		gone:   make(chan struct{}),
	}
	s.clients[c.id] = c
	if s.master == 0 {
		s.master = c.id
	}
	s.metrics.Clients.Set(float64(len(s.clients)))
	return c
}

// disconnect removes c. A departing master is replaced by the lowest
// remaining client id.
func (s *Server) disconnect(c *client) {
	c.drop()
	s.mu.Lock()
	delete(s.clients, c.id)
	if s.master == c.id {
		s.master = 0
		if len(s.clients) > 0 {
			s.master = slices.Min(slices.Collect(maps.Keys(s.clients)))
		}
	}
	s.metrics.Clients.Set(float64(len(s.clients)))
	remaining := len(s.clients)
	s.mu.Unlock()
	if remaining > 0 {
		s.broadcastRoster(0)
	}
}

func (s *Server) setLabel(id uint32, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClient, id)
	}
	c.label = label
	return nil
}

// promote makes id the master. Any client may promote any other; the
// role is advisory.
func (s *Server) promote(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClient, id)
	}
	s.master = id
	return nil
}

func (s *Server) roster() ([]message.UserRecord, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]message.UserRecord, 0, len(s.clients))
	for _, id := range slices.Sorted(maps.Keys(s.clients)) {
		users = append(users, message.UserRecord{ClientID: id, Name: s.clients[id].label})
	}
	return users, s.master
}

// Roster returns the connected clients ordered by id, and the master.
func (s *Server) Roster() ([]message.UserRecord, uint32) { return s.roster() }

// broadcastRoster sends the roster to every client except exclude
// (zero excludes nobody).
func (s *Server) broadcastRoster(exclude uint32) {
	users, master := s.roster()
	s.fanOut(exclude, &transport.Envelope{Op: transport.OpRoster, Roster: users, Master: master})
}

// fanOut sends env to every client except exclude.
func (s *Server) fanOut(exclude uint32, env *transport.Envelope) {
	frame, err := transport.EncodeFrame(env, s.threshold)
	if err != nil {
		s.logger.Error("encoding notification", "op", env.Op, "error", err)
		return
	}
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for id, c := range s.clients {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		s.enqueue(c, frame)
		s.metrics.Notifications.WithLabelValues(env.Op.String()).Inc()
	}
}

func (s *Server) send(c *client, env *transport.Envelope) {
	frame, err := transport.EncodeFrame(env, s.threshold)
	if err != nil {
		s.logger.Error("encoding reply", "op", env.Op, "error", err)
		return
	}
	s.enqueue(c, frame)
}

func (s *Server) enqueue(c *client, frame []byte) {
	select {
	case c.out <- frame:
	case <-c.gone:
	default:
		s.logger.Warn("client cannot keep up, disconnecting", "client", c.id)
		s.metrics.SlowClients.Inc()
		c.drop()
	}
}

func (s *Server) writeLoop(c *client, logger *slog.Logger) {
	for {
		select {
		case frame := <-c.out:
			if err := c.frames.WriteFrame(frame); err != nil {
				logger.Debug("write failed", "error", err)
				c.drop()
				return
			}
		case <-c.gone:
			return
		}
	}
}

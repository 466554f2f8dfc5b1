// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// Frames is a bidirectional stream of binary frames. ReadFrame is
// called from one goroutine; WriteFrame may be called concurrently.
type Frames interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Pipe returns two connected in-process Frames. A frame written to
// one end is read from the other. Closing either end closes both.
func Pipe() (Frames, Frames) {
	shared := &pipeShared{done: make(chan struct{})}
	a := make(chan []byte, 64)
	b := make(chan []byte, 64)
	return &pipeEnd{shared: shared, in: a, out: b}, &pipeEnd{shared: shared, in: b, out: a}
}

type pipeShared struct {
	once sync.Once
	done chan struct{}
}

type pipeEnd struct {
	shared *pipeShared
	in     <-chan []byte
	out    chan<- []byte
}

func (p *pipeEnd) ReadFrame() ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.shared.done:
		// Drain frames written before the close.
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	}
}

func (p *pipeEnd) WriteFrame(frame []byte) error {
	select {
	case <-p.shared.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- frame:
		return nil
	case <-p.shared.done:
		return ErrClosed
	}
}

func (p *pipeEnd) Close() error {
	p.shared.once.Do(func() { close(p.shared.done) })
	return nil
}

// writeWait bounds a single WebSocket write.
const writeWait = 10 * time.Second

// WebSocketFrames adapts a gorilla WebSocket connection to [Frames].
// Frames travel as binary messages.
type WebSocketFrames struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketFrames wraps conn.
func NewWebSocketFrames(conn *websocket.Conn) *WebSocketFrames {
	return &WebSocketFrames{conn: conn}
}

func (w *WebSocketFrames) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			return nil, err
		}
		if kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *WebSocketFrames) WriteFrame(frame []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close sends a close frame and closes the connection.
func (w *WebSocketFrames) Close() error {
	w.writeMu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return w.conn.Close()
}

// Upgrader accepts WebSocket connections on the server side. Origins
// are not checked; the endpoint carries no browser credentials.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// AcceptWebSocket upgrades an HTTP request to a WebSocket and returns
// its frames. On failure the upgrader has already replied to the
// client.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocketFrames, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketFrames(conn), nil
}

// DialWebSocket connects to a server WebSocket endpoint
// ("ws://host:port/ws").
func DialWebSocket(ctx context.Context, url string) (*WebSocketFrames, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketFrames(conn), nil
}

package gateway

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Socket wraps one client connection. Writes are serialized: gorilla's
// *websocket.Conn is not safe for concurrent writers, and several engine
// components (the synchronizer, handler replies, the info channel) may
// all want to emit to the same socket within a tick.
type Socket struct {
	id   int64
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewSocket(id int64, conn *websocket.Conn) *Socket {
	return &Socket{id: id, conn: conn}
}

func (s *Socket) ID() int64 { return s.id }

// Send delivers {event, data} with data keys snake_cased, as the
// transport contract requires. Writes to an already-closed socket are
// silently dropped: a socket closed mid-tick is still a valid emit
// target, and no special cancellation propagates.
func (s *Socket) Send(event string, data map[string]any) error {
	body, err := EncodeFrame(event, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.conn.WriteMessage(websocket.TextMessage, body)
}

// Receive blocks for the next frame, converting its data keys to
// camelCase for handler consumption.
func (s *Socket) Receive() (Frame, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	return DecodeFrame(raw)
}

// Close tears down the underlying connection. Safe to call more than
// once.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

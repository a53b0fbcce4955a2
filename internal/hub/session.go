package hub

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cuecast/internal/models"
	"cuecast/internal/protocol"
)

// Conn is the framing surface the hub needs from a connection.
// *websocket.Conn satisfies it; tests use an in-memory pipe.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

const sendBufferSize = 32

var errSessionClosed = errors.New("session closed")

// Session owns one live connection: a buffered outbound queue drained
// by a single writer goroutine, and liveness bookkeeping for the
// heartbeat sweep.
type Session struct {
	DeviceID string
	Name     string
	Role     models.DeviceRole

	conn Conn
	send chan []byte

	closeOnce sync.Once
	closed    atomic.Bool
	alive     atomic.Bool
	lastPong  atomic.Int64 // unix nanos
}

func newSession(conn Conn, id, name string, role models.DeviceRole) *Session {
	s := &Session{
		DeviceID: id,
		Name:     name,
		Role:     role,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}
	s.alive.Store(true)
	s.lastPong.Store(time.Now().UTC().UnixNano())
	go s.writePump()
	return s
}

func (s *Session) writePump() {
	for data := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("writing to %s: %v", s.DeviceID, err)
			s.Close()
			return
		}
	}
}

// Send encodes v and queues it. It never blocks: a full queue counts as
// a failed delivery, matching the best-effort fan-out contract.
func (s *Session) Send(v any) (err error) {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	// The queue can close between the closed check and the send.
	defer func() {
		if recover() != nil {
			err = errSessionClosed
		}
	}()
	if s.closed.Load() {
		return errSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return errors.New("send queue full")
	}
}

// Close shuts the connection down exactly once. Safe to call from any
// goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.send)
		s.conn.Close()
	})
}

// Alive reports whether a pong arrived since the last heartbeat probe.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

func (s *Session) clearAlive() {
	s.alive.Store(false)
}

func (s *Session) markPong() {
	s.alive.Store(true)
	s.lastPong.Store(time.Now().UTC().UnixNano())
}

// LastPong is the time of the most recent pong from this peer.
func (s *Session) LastPong() time.Time {
	return time.Unix(0, s.lastPong.Load()).UTC()
}

// Package backend implements the chat server: framed TCP sessions, the
// message worker, the Redis mailbox consumer and the load reporter.
package backend

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/chatroom/backend/internal/protocol"
)

// Session is one client TCP connection. Reads run on a dedicated goroutine;
// writes are funneled through a send queue so at most one write is in flight
// per connection at any time.
type Session struct {
	conn net.Conn

	// poster receives every inbound frame, and a nil frame once as the
	// close tombstone.
	poster func(*Session, *protocol.Frame)

	sendMu  sync.Mutex
	sendQ   [][]byte
	sending bool

	closed atomic.Bool

	// uid and verified are written by the message worker during the
	// handshake and read by routing code afterwards.
	uid      atomic.Int64
	verified atomic.Bool

	onClose func(*Session)
}

func NewSession(conn net.Conn, poster func(*Session, *protocol.Frame), onClose func(*Session)) *Session {
	return &Session{conn: conn, poster: poster, onClose: onClose}
}

// UID returns the bound user id, 0 before verification.
func (s *Session) UID() int64 { return s.uid.Load() }

// Verified reports whether the handshake completed.
func (s *Session) Verified() bool { return s.verified.Load() }

// Bind marks the session as carrying uid. Called once by the worker when the
// token checks out.
func (s *Session) Bind(uid int64) {
	s.uid.Store(uid)
	s.verified.Store(true)
}

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Serve runs the receive loop until the peer disconnects or a protocol
// violation ends the session. Runs on its own goroutine.
func (s *Session) Serve() {
	for {
		frame, err := protocol.ReadFrame(s.conn)
		if err != nil {
			if err != protocol.ErrConnClosed && !s.closed.Load() {
				slog.Warn("[Session] receive failed", "remote", s.RemoteAddr(), "error", err)
			}
			s.Close()
			return
		}
		if s.closed.Load() {
			return
		}
		s.poster(s, frame)
	}
}

// Send queues an encoded frame. The first entry on an empty queue starts the
// drain goroutine, so concurrent senders never interleave partial writes.
func (s *Session) Send(tag protocol.Tag, payload []byte) {
	if s.closed.Load() {
		return
	}
	buf := protocol.EncodeFrame(tag, payload)

	s.sendMu.Lock()
	s.sendQ = append(s.sendQ, buf)
	start := !s.sending
	if start {
		s.sending = true
	}
	s.sendMu.Unlock()

	if start {
		go s.drainSendQueue()
	}
}

func (s *Session) drainSendQueue() {
	for {
		s.sendMu.Lock()
		if len(s.sendQ) == 0 {
			s.sending = false
			s.sendMu.Unlock()
			return
		}
		buf := s.sendQ[0]
		s.sendQ = s.sendQ[1:]
		s.sendMu.Unlock()

		if _, err := s.conn.Write(buf); err != nil {
			if !s.closed.Load() {
				slog.Warn("[Session] send failed", "remote", s.RemoteAddr(), "error", err)
			}
			s.sendMu.Lock()
			s.sendQ = nil
			s.sending = false
			s.sendMu.Unlock()
			s.Close()
			return
		}
	}
}

// Close tears the session down exactly once: the socket is closed, the
// worker gets a nil tombstone to clear online state, and the registry entry
// is dropped.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	_ = s.conn.Close()
	if s.poster != nil {
		s.poster(s, nil)
	}
	if s.onClose != nil {
		s.onClose(s)
	}
}

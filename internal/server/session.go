package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is one accepted connection.
type session struct {
	id      string
	remote  string
	started time.Time

	conn      net.Conn
	closeOnce sync.Once
}

func newSession(conn net.Conn) *session {
	return &session{
		id:      uuid.NewString(),
		remote:  conn.RemoteAddr().String(),
		started: time.Now(),
		conn:    conn,
	}
}

// close shuts the underlying socket, unblocking any pending read.
func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// SessionInfo describes a live connection.
type SessionInfo struct {
	ID      string    `json:"id"`
	Remote  string    `json:"remote"`
	Started time.Time `json:"started"`
}

// Package server accepts controller connections and feeds their requests to
// the command dispatcher.
package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/protocol"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

const (
	lingerTimeout = 500 * time.Millisecond
	lingerLimit   = 64 << 10
)

// Dispatcher turns one raw request into one serialized response.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) []byte
}

// Activator shows the connection indicator for as long as a connection lives.
type Activator interface {
	Activate(ctx context.Context) (release func())
}

// Config holds the listener settings.
type Config struct {
	Address          string
	Port             int
	TLS              *tls.Config // nil serves plain TCP
	MaxConnections   int         // 0 means unlimited
	MaxMessageSize   int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration // 0 disables the read deadline
}

// Server is the listener plus one handler goroutine per connection.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	indicator  Activator
	logger     zerolog.Logger

	listener net.Listener
	sessions cmap.ConcurrentMap[string, *session]
	slots    chan struct{}

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer initializes a new Server.
func NewServer(cfg Config, dispatcher Dispatcher, indicator Activator, logger zerolog.Logger) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = constants.DefaultMaxMessageSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = constants.DefaultHandshakeTimeout
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		indicator:  indicator,
		logger:     logger,
		sessions:   cmap.New[*session](),
	}
	if cfg.MaxConnections > 0 {
		s.slots = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("Server is already running")
		return errors.New("server is already running")
	}

	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error().Err(err).Str("address", addr).Msg("Failed to listen")
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.acceptLoop(s.ctx, listener)

	s.logger.Info().Str("address", listener.Addr().String()).Bool("tls", s.cfg.TLS != nil).Msg("Server listening")
	return nil
}

// Stop closes the listener and every live connection, then waits for the
// handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		s.logger.Warn().Msg("Server is not running")
		return errors.New("server is not running")
	}
	s.cancel()
	err := s.listener.Close()
	s.listener = nil
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	for item := range s.sessions.IterBuffered() {
		item.Val.close()
	}
	s.wg.Wait()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Error().Err(err).Msg("Failed to close listener")
		return err
	}
	s.logger.Info().Msg("Server stopped successfully")
	return nil
}

// Addr returns the bound address, nil while the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns the number of live connections.
func (s *Server) Connections() int {
	return s.sessions.Count()
}

// Sessions describes the live connections, oldest first.
func (s *Server) Sessions() []SessionInfo {
	out := make([]SessionInfo, 0, s.sessions.Count())
	for item := range s.sessions.IterBuffered() {
		out = append(out, SessionInfo{ID: item.Val.id, Remote: item.Val.remote, Started: item.Val.started})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("Failed to accept connection")
			// back off on persistent accept errors such as fd exhaustion
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		if !s.acquire() {
			s.logger.Warn().Str("remote", conn.RemoteAddr().String()).Int("limit", s.cfg.MaxConnections).
				Msg("Connection limit reached, rejecting connection")
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) acquire() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

func (s *Server) handleConnection(ctx context.Context, raw net.Conn) {
	sess := newSession(raw)
	s.sessions.Set(sess.id, sess)
	defer s.sessions.Remove(sess.id)
	defer s.release()
	defer sess.close()

	logger := s.logger.With().Str("session", sess.id).Str("remote", sess.remote).Logger()

	// Stop may have run between Accept and registration
	if ctx.Err() != nil {
		return
	}

	conn := raw
	if s.cfg.TLS != nil {
		tlsConn := tls.Server(raw, s.cfg.TLS)
		hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		err := tlsConn.HandshakeContext(hctx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("TLS handshake failed")
			return
		}
		defer tlsConn.Close()
		conn = tlsConn
	}

	logger.Info().Msg("Agent connected")
	release := s.indicator.Activate(ctx)
	defer release()

	s.serve(ctx, conn, logger)
	logger.Info().Dur("duration", time.Since(sess.started)).Msg("Agent disconnected")
}

// serve runs the request loop of one connection. Requests are newline
// delimited; a trailing request without newline is handled at EOF.
func (s *Server) serve(ctx context.Context, conn net.Conn, logger zerolog.Logger) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(1024, s.cfg.MaxMessageSize)), s.cfg.MaxMessageSize)

	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}

		msg := bytes.TrimSpace(scanner.Bytes())
		if len(msg) == 0 {
			continue
		}

		logger.Debug().Bytes("data", msg).Msg("Received data")
		if err := s.write(conn, s.dispatcher.Dispatch(ctx, msg)); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
			return
		}
	}

	err := scanner.Err()
	switch {
	case err == nil, errors.Is(err, io.EOF):
		logger.Debug().Msg("Connection closed by peer")
	case errors.Is(err, bufio.ErrTooLong):
		logger.Warn().Int("limit", s.cfg.MaxMessageSize).Msg("Request exceeds maximum message size")
		resp, _ := json.Marshal(protocol.ErrorResponse(
			protocol.Errorf(protocol.KindDecode, "request exceeds %d bytes", s.cfg.MaxMessageSize)))
		_ = s.write(conn, resp)
		lingerClose(conn)
	case errors.Is(err, net.ErrClosed) || ctx.Err() != nil:
		logger.Debug().Msg("Connection closed during shutdown")
	default:
		logger.Warn().Err(err).Msg("Connection read failed")
	}
}

func (s *Server) write(conn net.Conn, payload []byte) error {
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	_, err := conn.Write(append(payload, '\n'))
	return err
}

// lingerClose half-closes conn and drains what the peer is still sending, so
// that closing with unread input does not reset the connection before the
// peer has read the last response.
func lingerClose(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.CopyN(io.Discard, conn, lingerLimit)
}

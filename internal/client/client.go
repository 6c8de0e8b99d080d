// Package client drives a gpio agent over its line-delimited JSON protocol.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/rs/zerolog"
)

// Client sends commands to one agent. Each call opens its own connection.
type Client struct {
	host           string
	port           int
	useTLS         bool
	dialTimeout    time.Duration
	commandTimeout time.Duration
	logger         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTLS toggles the TLS transport. The server certificate is not verified.
func WithTLS(enabled bool) Option {
	return func(c *Client) {
		c.useTLS = enabled
	}
}

// WithDialTimeout bounds connection setup including the TLS handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithCommandTimeout sets the default per-command round trip timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.commandTimeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for host:port. TLS is on by default.
func New(host string, port int, opts ...Option) *Client {
	c := &Client{
		host:           host,
		port:           port,
		useTLS:         true,
		dialTimeout:    constants.DefaultDialTimeout,
		commandTimeout: constants.DefaultCommandTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns host:port.
func (c *Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// SendCommands sends cmds sequentially over one connection and returns one
// response per command, in order. A failed round trip fills that slot with
// an error entry and does not stop the remaining commands. The error return
// is only set when no connection could be made; every slot is filled then.
func (c *Client) SendCommands(ctx context.Context, cmds []protocol.Command, timeout time.Duration) ([]protocol.Command, error) {
	if timeout <= 0 {
		timeout = c.commandTimeout
	}

	responses := make([]protocol.Command, len(cmds))
	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("address", c.Address()).Msg("Failed to connect")
		for i, cmd := range cmds {
			responses[i] = failure(cmd, err)
		}
		return responses, err
	}
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for i, cmd := range cmds {
		if conn == nil {
			// the previous round trip left the stream out of sync
			if conn, err = c.dial(ctx); err != nil {
				responses[i] = failure(cmd, err)
				continue
			}
		}

		resp, err := conn.roundTrip(ctx, cmd, timeout)
		if err != nil {
			c.logger.Error().Err(err).Str("command", actionOf(cmd)).Msg("Client-side error")
			responses[i] = failure(cmd, err)
			if protocol.KindOf(err) != protocol.KindDecode {
				conn.Close()
				conn = nil
			}
			continue
		}
		if resp.Failed() {
			c.logger.Error().Interface("response", resp).Msg("Server-side error")
		}
		responses[i] = resp
	}
	return responses, nil
}

// SendCommand sends a single command.
func (c *Client) SendCommand(ctx context.Context, cmd protocol.Command, timeout time.Duration) (protocol.Command, error) {
	responses, err := c.SendCommands(ctx, []protocol.Command{cmd}, timeout)
	return responses[0], err
}

// PollCommandResponse sends cmd every interval over one connection until
// validate accepts a response or timeout elapses. It reports whether any
// response was accepted.
func (c *Client) PollCommandResponse(ctx context.Context, cmd protocol.Command, validate func(protocol.Command) bool,
	interval, timeout time.Duration) (bool, error) {
	if interval <= 0 || timeout <= 0 {
		return false, fmt.Errorf("interval and timeout must be positive, got %s and %s", interval, timeout)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	attempts := 0
	for time.Since(start) < timeout {
		attempts++
		resp, err := conn.roundTrip(ctx, cmd, c.commandTimeout)
		if err != nil {
			resp = failure(cmd, err)
		}
		if validate(resp) {
			c.logger.Debug().Int("attempts", attempts).Msg("Poll succeeded")
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}

	c.logger.Debug().Int("attempts", attempts).Dur("timeout", timeout).Msg("Poll timed out")
	return false, nil
}

func (c *Client) dial(ctx context.Context) (*stream, error) {
	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(dctx, "tcp", c.Address())
	if err != nil {
		return nil, classify(err)
	}

	nc := raw
	if c.useTLS {
		tlsConn := tls.Client(raw, &tls.Config{
			ServerName:         c.host,
			InsecureSkipVerify: true, // encryption without peer authentication
			MinVersion:         tls.VersionTLS12,
		})
		if err := tlsConn.HandshakeContext(dctx); err != nil {
			raw.Close()
			return nil, classify(fmt.Errorf("tls handshake: %w", err))
		}
		nc = tlsConn
	}

	c.logger.Debug().Str("address", c.Address()).Bool("tls", c.useTLS).Msg("Connected")
	return &stream{Conn: nc, reader: bufio.NewReader(nc)}, nil
}

// stream is a connection with its buffered response reader.
type stream struct {
	net.Conn
	reader *bufio.Reader
}

// roundTrip writes one command and reads its response. The deadline is
// renewed for every command.
func (c *stream) roundTrip(ctx context.Context, cmd protocol.Command, timeout time.Duration) (protocol.Command, error) {
	out := cmd.Clone()
	out[protocol.FieldTimeSent] = time.Now().UnixNano()
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindDecode, err)
	}

	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, classify(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.Write(append(payload, '\n')); err != nil {
		return nil, classify(contextErr(ctx, err))
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, classify(contextErr(ctx, err))
	}

	resp, err := protocol.DecodeCommand(line)
	if err != nil {
		return nil, err
	}
	resp[protocol.FieldTimeResponded] = time.Now().UnixNano()
	return resp, nil
}

// contextErr prefers the context error when cancellation caused err.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

func classify(err error) error {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return err
	}
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return protocol.Wrap(protocol.KindTimeout, err)
	}
	return protocol.Wrap(protocol.KindTransport, err)
}

func failure(cmd protocol.Command, err error) protocol.Command {
	return protocol.Command{
		protocol.FieldError:     err.Error(),
		protocol.FieldException: string(protocol.KindOf(err)),
		protocol.FieldCommand:   cmd,
	}
}

func actionOf(cmd protocol.Command) string {
	name, _ := cmd.Action()
	return name
}

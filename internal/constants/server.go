package constants

import "time"

const (
	// DefaultPort is the TCP port the agent listens on.
	DefaultPort = 12345

	// DefaultAddress binds every interface.
	DefaultAddress = "0.0.0.0"

	// DefaultMaxConnections limits the number of connections served at once.
	DefaultMaxConnections = 4

	// DefaultMaxMessageSize bounds a single newline-delimited request.
	DefaultMaxMessageSize = 4096

	// DefaultHandshakeTimeout bounds the TLS handshake of an accepted connection.
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds writing a single response.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultCommandTimeout is the client-side read timeout per command.
	DefaultCommandTimeout = 3 * time.Second

	// DefaultDialTimeout bounds opening a client connection.
	DefaultDialTimeout = 5 * time.Second
)

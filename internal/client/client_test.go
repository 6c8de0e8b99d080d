package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/benmeehan/gpio-agent/internal/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatcher echoes commands. "hang" answers late, "garbage" answers
// with something that is not JSON.
type fakeDispatcher struct {
	version string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, raw []byte) []byte {
	cmd, err := protocol.DecodeCommand(raw)
	if err != nil {
		out, _ := json.Marshal(protocol.ErrorResponse(err))
		return out
	}

	resp := protocol.NewResponse(cmd)
	resp.Set(protocol.FieldTimeReceived, time.Now().UnixNano())

	action, _ := cmd.Action()
	switch action {
	case "hang":
		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
		}
	case "garbage":
		return []byte("not json")
	case "get_version":
		resp.Set("version", f.version)
	}

	out, _ := json.Marshal(resp)
	return out
}

type noopActivator struct{}

func (noopActivator) Activate(ctx context.Context) func() {
	return func() {}
}

func startAgent(t *testing.T, tlsConfig *tls.Config) (string, int) {
	t.Helper()
	s := server.NewServer(server.Config{
		Address:        "127.0.0.1",
		TLS:            tlsConfig,
		MaxConnections: 4,
		WriteTimeout:   2 * time.Second,
	}, &fakeDispatcher{version: protocol.Version}, noopActivator{}, zerolog.Nop())
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		_ = s.Stop()
	})

	addr := s.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func unusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func plainClient(host string, port int) *Client {
	return New(host, port, WithTLS(false), WithDialTimeout(time.Second), WithCommandTimeout(time.Second))
}

func ping() protocol.Command {
	return protocol.Command{protocol.FieldAction: "ping"}
}

func TestSendCommands_InOrder(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	cmds := []protocol.Command{
		{protocol.FieldAction: "setup_pin", "pin": 4, "mode": "output"},
		{protocol.FieldAction: "write_pin", "pin": 4, "value": 1, "timeout": 1.0},
		{protocol.FieldAction: "read_pin", "pin": 4},
	}
	responses, err := c.SendCommands(context.Background(), cmds, 0)
	require.NoError(t, err)
	require.Len(t, responses, 3)

	for i, resp := range responses {
		assert.False(t, resp.Failed())
		assert.Equal(t, cmds[i][protocol.FieldAction], resp[protocol.FieldAction])

		sent, ok := resp.Int64(protocol.FieldTimeSent)
		require.True(t, ok)
		responded, ok := resp.Int64(protocol.FieldTimeResponded)
		require.True(t, ok)
		assert.GreaterOrEqual(t, responded, sent)
		assert.Contains(t, resp, protocol.FieldTimeReceived)
	}

	// the caller's commands are not modified
	assert.NotContains(t, cmds[0], protocol.FieldTimeSent)
}

func TestSendCommands_DialFailureFillsEverySlot(t *testing.T) {
	c := plainClient("127.0.0.1", unusedPort(t))

	responses, err := c.SendCommands(context.Background(), []protocol.Command{ping(), ping()}, 0)
	require.Error(t, err)
	require.Len(t, responses, 2)

	for _, resp := range responses {
		assert.Equal(t, "TransportError", resp[protocol.FieldException])
		assert.NotEmpty(t, resp[protocol.FieldError])
		assert.Equal(t, ping(), resp[protocol.FieldCommand])
	}
}

func TestSendCommands_TimeoutDoesNotAbortRemaining(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	cmds := []protocol.Command{{protocol.FieldAction: "hang"}, ping()}
	responses, err := c.SendCommands(context.Background(), cmds, 100*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "TimeoutError", responses[0][protocol.FieldException])
	assert.False(t, responses[1].Failed())
	assert.Equal(t, "ping", responses[1][protocol.FieldAction])
}

func TestSendCommands_DecodeErrorSlot(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	responses, err := c.SendCommands(context.Background(), []protocol.Command{{protocol.FieldAction: "garbage"}, ping()}, 0)
	require.NoError(t, err)

	assert.Equal(t, "DecodeError", responses[0][protocol.FieldException])
	assert.False(t, responses[1].Failed())
}

func TestSendCommand(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	resp, err := c.SendCommand(context.Background(), ping(), 0)
	require.NoError(t, err)
	assert.Equal(t, "ping", resp[protocol.FieldAction])
}

func TestPing(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	stats, err := c.Ping(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPingCount, stats.Count)
	assert.False(t, stats.Error)
	assert.GreaterOrEqual(t, stats.RTT, 0.0)
}

func TestPing_Unreachable(t *testing.T) {
	c := plainClient("127.0.0.1", unusedPort(t))

	stats, err := c.Ping(context.Background(), 3)
	assert.Error(t, err)
	assert.True(t, stats.Error)
	assert.Zero(t, stats.Count)
}

func TestPollCommandResponse_NeverValid(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	attempts := 0
	start := time.Now()
	ok, err := c.PollCommandResponse(context.Background(), ping(), func(protocol.Command) bool {
		attempts++
		return false
	}, 50*time.Millisecond, 300*time.Millisecond)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.GreaterOrEqual(t, attempts, 6)
}

func TestPollCommandResponse_EventuallyValid(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	attempts := 0
	ok, err := c.PollCommandResponse(context.Background(), ping(), func(resp protocol.Command) bool {
		attempts++
		return !resp.Failed() && attempts == 3
	}, 10*time.Millisecond, 5*time.Second)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, attempts)
}

func TestPollCommandResponse_InvalidArguments(t *testing.T) {
	c := plainClient("127.0.0.1", 1)

	_, err := c.PollCommandResponse(context.Background(), ping(), func(protocol.Command) bool {
		return true
	}, 0, time.Second)
	assert.Error(t, err)
}

func TestCheckVersion(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	v, err := c.CheckVersion(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, protocol.Version, v.String())

	v, err = c.CheckVersion(context.Background(), "^2.0.0")
	assert.Error(t, err)
	assert.NotNil(t, v)

	_, err = c.CheckVersion(context.Background(), "not a constraint")
	assert.Error(t, err)
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "gpio-agent-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
}

func TestSendCommands_TLS(t *testing.T) {
	host, port := startAgent(t, selfSignedTLS(t))

	c := New(host, port, WithDialTimeout(time.Second), WithCommandTimeout(time.Second))
	resp, err := c.SendCommand(context.Background(), ping(), 0)
	require.NoError(t, err)
	assert.False(t, resp.Failed())

	// a plain client cannot talk to a TLS agent
	resp, _ = plainClient(host, port).SendCommand(context.Background(), ping(), 200*time.Millisecond)
	assert.True(t, resp.Failed())
}

func TestSendCommands_ContextCancelled(t *testing.T) {
	host, port := startAgent(t, nil)
	c := plainClient(host, port)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	responses, err := c.SendCommands(ctx, []protocol.Command{{protocol.FieldAction: "hang"}}, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, responses[0].Failed())
	assert.Equal(t, "TimeoutError", responses[0][protocol.FieldException])
}

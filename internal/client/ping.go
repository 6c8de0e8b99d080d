package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/benmeehan/gpio-agent/internal/protocol"
)

// DefaultPingCount is the number of pings sent when none is given.
const DefaultPingCount = 5

// PingStats summarizes a ping sequence. Times are averages in seconds.
type PingStats struct {
	RTT   float64 `json:"rtt"`   // time_sent to time_responded
	TSend float64 `json:"tsend"` // time_sent to time_received
	Error bool    `json:"error"` // at least one ping failed
	Count int     `json:"count"` // pings that contributed to the averages
}

// Ping sends n ping commands over one connection and averages their
// latencies. Clock skew between the hosts shows up in TSend.
func (c *Client) Ping(ctx context.Context, n int) (PingStats, error) {
	if n <= 0 {
		n = DefaultPingCount
	}
	cmds := make([]protocol.Command, n)
	for i := range cmds {
		cmds[i] = protocol.Command{protocol.FieldAction: "ping"}
	}

	responses, err := c.SendCommands(ctx, cmds, 0)
	stats := PingStats{}
	var rtt, tsend int64
	for _, r := range responses {
		if r.Failed() {
			stats.Error = true
			continue
		}
		sent, ok1 := r.Int64(protocol.FieldTimeSent)
		received, ok2 := r.Int64(protocol.FieldTimeReceived)
		responded, ok3 := r.Int64(protocol.FieldTimeResponded)
		if !ok1 || !ok2 || !ok3 {
			stats.Error = true
			continue
		}
		rtt += responded - sent
		tsend += received - sent
		stats.Count++
	}
	if stats.Count > 0 {
		stats.RTT = float64(rtt) / float64(stats.Count) / float64(time.Second)
		stats.TSend = float64(tsend) / float64(stats.Count) / float64(time.Second)
	}
	return stats, err
}

// CompatibleVersions is the constraint a device protocol version must meet
// for this client.
var CompatibleVersions = "^" + protocol.Version

// CheckVersion asks the device for its protocol version and checks it
// against constraint. An empty constraint uses CompatibleVersions.
func (c *Client) CheckVersion(ctx context.Context, constraint string) (*semver.Version, error) {
	if constraint == "" {
		constraint = CompatibleVersions
	}
	want, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}

	resp, err := c.SendCommand(ctx, protocol.Command{protocol.FieldAction: "get_version"}, 0)
	if err != nil {
		return nil, err
	}
	if resp.Failed() {
		return nil, fmt.Errorf("get_version failed: %v", resp[protocol.FieldError])
	}

	raw, ok := resp["version"].(string)
	if !ok {
		return nil, errors.New("get_version returned no version")
	}
	got, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("device reported invalid version %q: %w", raw, err)
	}
	if !want.Check(got) {
		return got, fmt.Errorf("device protocol version %s does not satisfy %s", got, constraint)
	}

	c.logger.Debug().Str("version", got.String()).Str("constraint", constraint).Msg("Device version is compatible")
	return got, nil
}

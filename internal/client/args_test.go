package client

import (
	"testing"

	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	cmd, err := ParseAssignments([]string{"action=write_pin pin=4,value=1", "timeout=0.5"})
	require.NoError(t, err)

	assert.Equal(t, protocol.Command{
		"action":  "write_pin",
		"pin":     "4",
		"value":   "1",
		"timeout": "0.5",
	}, cmd)
}

func TestParseAssignments_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"action"},
		{"=ping"},
		{"a=b=c"},
		{""},
		nil,
	} {
		_, err := ParseAssignments(args)
		assert.Error(t, err, "args %q", args)
	}
}

package client

import (
	"fmt"
	"strings"

	"github.com/benmeehan/gpio-agent/internal/protocol"
)

// ParseAssignments builds a command from KEY=VALUE pairs. Each argument may
// hold several pairs separated by spaces or commas. Values are kept as
// strings; the agent converts them to the types each action expects.
func ParseAssignments(args []string) (protocol.Command, error) {
	cmd := protocol.Command{}
	for _, arg := range args {
		pairs := strings.FieldsFunc(arg, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, pair := range pairs {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" || strings.Contains(value, "=") {
				return nil, fmt.Errorf("could not parse %q as KEY=VALUE", pair)
			}
			cmd[key] = value
		}
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return cmd, nil
}

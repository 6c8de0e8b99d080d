package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/benmeehan/gpio-agent/internal/client"
	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/internal/protocol"
	"github.com/benmeehan/gpio-agent/internal/utils"
	"github.com/benmeehan/gpio-agent/pkg/file"
	"github.com/spf13/cobra"
)

type options struct {
	noSSL    bool
	commands []string
	file     string
	timeout  float64
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "pinctl HOST PORT",
		Short: "Send commands to a GPIO agent",
		Long: "Sends commands to a GPIO agent and prints the JSON responses.\n" +
			"Without --command or --file a ping sequence is sent.",
		Example: `  pinctl 192.168.1.20 12345 -c "action=setup_pin pin=4 mode=output" -c "action=write_pin,pin=4,value=1,timeout=1"
  pinctl 192.168.1.20 12345 --no-ssl -f commands.json`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.noSSL, "no-ssl", false, "connect without TLS")
	flags.StringArrayVarP(&opts.commands, "command", "c", nil, "command as KEY=VALUE pairs (repeatable)")
	flags.StringVarP(&opts.file, "file", "f", "", "JSON file holding an array of commands")
	flags.Float64Var(&opts.timeout, "timeout", constants.DefaultCommandTimeout.Seconds(), "timeout in seconds for each command")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log client activity to stderr")
	cmd.MarkFlagsMutuallyExclusive("command", "file")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	port, err := strconv.Atoi(args[1])
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", args[1])
	}
	if opts.timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", opts.timeout)
	}

	var cmds []protocol.Command
	switch {
	case len(opts.commands) > 0:
		for _, raw := range opts.commands {
			c, err := client.ParseAssignments([]string{raw})
			if err != nil {
				return err
			}
			cmds = append(cmds, c)
		}
	case opts.file != "":
		if err := file.NewFileService().ReadJsonFile(opts.file, &cmds); err != nil {
			return fmt.Errorf("failed to read commands: %w", err)
		}
	}

	level := "disabled"
	if opts.verbose {
		level = "debug"
	}
	timeout := time.Duration(opts.timeout * float64(time.Second))
	c := client.New(args[0], port,
		client.WithTLS(!opts.noSSL),
		client.WithCommandTimeout(timeout),
		client.WithLogger(utils.NewLogger(level, "console")),
	)

	// failures are reported in the printed output; only misuse is an error
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result any
	if cmds == nil {
		result, _ = c.Ping(ctx, client.DefaultPingCount)
	} else {
		result, _ = c.SendCommands(ctx, cmds, timeout)
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	return out.Encode(result)
}

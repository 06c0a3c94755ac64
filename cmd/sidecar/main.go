// Command sidecar drives a JSON-lines child process from the command line.
//
// Commands:
//   - request: send one <kind>_request and print the response data
//   - lookup: geocode a place name
//   - watch: print every unsolicited event until the child exits
//   - run: look up a place, then watch for location updates
//   - serve-mcp: expose the session as MCP tools on stdio
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	sidecar "github.com/wagiedev/sidecar-go"
)

// version is reported to MCP hosts.
const version = "0.1.0"

// Persistent flags shared by every subcommand.
type rootFlags struct {
	configPath      string
	command         string
	args            []string
	credentialVar   string
	protocol        string
	protocolVersion string
	correlation     string
	logLevel        string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCommand(&rootFlags{})
}

func newRootCommand(flags *rootFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sidecar",
		Short: "Talk to a JSON-lines child process",
		Long: `sidecar launches a child process that speaks newline-delimited JSON on
its standard streams, performs the connect handshake, and issues requests.

Configuration is read from SIDECAR_* environment variables, then the file
given with --config, then flags; later sources win.`,
		Example: `  sidecar --command npx --arg -y --arg @modelcontextprotocol/server-google-maps \
    --credential-var GOOGLE_MAPS_API_KEY lookup "Tokyo Tower"
  sidecar --config sidecar.toml request location --payload '{"query":"Eiffel Tower"}'
  sidecar --config sidecar.toml watch`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to a .toml or .yaml config file")
	pf.StringVar(&flags.command, "command", "", "Child executable (path or name on PATH)")
	pf.StringArrayVar(&flags.args, "arg", nil, "Child argument (repeatable)")
	pf.StringVar(&flags.credentialVar, "credential-var", "", "Environment variable copied into the child (e.g. GOOGLE_MAPS_API_KEY)")
	pf.StringVar(&flags.protocol, "protocol", "", "Protocol name sent in the connect message")
	pf.StringVar(&flags.protocolVersion, "protocol-version", "", "Protocol version sent in the connect message")
	pf.StringVar(&flags.correlation, "correlation", "", "Response matching: ordered or id")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newRequestCmd(flags))
	rootCmd.AddCommand(newLookupCmd(flags))
	rootCmd.AddCommand(newWatchCmd(flags))
	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newServeMCPCmd(flags))

	return rootCmd
}

// newLogger creates a structured logger on stderr at the configured level.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// buildOptions layers defaults, environment, config file and flags.
func buildOptions(cmd *cobra.Command, flags *rootFlags, log *slog.Logger) ([]sidecar.Option, error) {
	opts := []sidecar.Option{sidecar.WithLogger(log)}

	env, err := sidecar.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	opts = append(opts, sidecar.WithConfig(env))

	if flags.configPath != "" {
		file, err := sidecar.LoadConfigFile(flags.configPath)
		if err != nil {
			return nil, err
		}

		opts = append(opts, sidecar.WithConfig(file))
	}

	changed := cmd.Flags().Changed

	if changed("command") {
		opts = append(opts, sidecar.WithCommand(flags.command))
	}

	if changed("arg") {
		opts = append(opts, sidecar.WithArgs(flags.args...))
	}

	if changed("credential-var") {
		opts = append(opts, sidecar.WithCredential(flags.credentialVar))
	}

	if changed("protocol") {
		opts = append(opts, func(o *sidecar.Options) { o.Protocol = flags.protocol })
	}

	if changed("protocol-version") {
		opts = append(opts, func(o *sidecar.Options) { o.ProtocolVersion = flags.protocolVersion })
	}

	if changed("correlation") {
		opts = append(opts, sidecar.WithCorrelation(sidecar.Correlation(strings.ToLower(flags.correlation))))
	}

	return opts, nil
}

// withSession connects, runs fn, and always closes the child. The context is
// cancelled on SIGINT or SIGTERM. extra options are applied last.
func withSession(
	cmd *cobra.Command,
	flags *rootFlags,
	extra []sidecar.Option,
	fn func(ctx context.Context, c sidecar.Client) error,
) error {
	log, err := newLogger(flags.logLevel)
	if err != nil {
		return err
	}

	opts, err := buildOptions(cmd, flags, log)
	if err != nil {
		return err
	}

	opts = append(opts, extra...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return sidecar.WithClient(ctx, func(c sidecar.Client) error {
		return fn(ctx, c)
	}, opts...)
}

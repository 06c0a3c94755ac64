package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	sidecar "github.com/wagiedev/sidecar-go"
	"github.com/wagiedev/sidecar-go/internal/tools"
)

func newRequestCmd(flags *rootFlags) *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "request <kind>",
		Short: "Send one request and print the response data",
		Example: `  sidecar request location --payload '{"query":"Tokyo Tower"}'
  sidecar request echo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields map[string]any

			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &fields); err != nil {
					return fmt.Errorf("--payload must be a JSON object: %w", err)
				}
			}

			return withSession(cmd, flags, nil, func(ctx context.Context, c sidecar.Client) error {
				resp, err := c.Request(ctx, args[0], fields)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), resp.Data)
			})
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "JSON object merged into the request")

	return cmd
}

func newLookupCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <query>",
		Short: "Geocode a place name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			return withSession(cmd, flags, nil, func(ctx context.Context, c sidecar.Client) error {
				loc, err := sidecar.LookupLocation(ctx, c, query)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), loc)
			})
		},
	}
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print every unsolicited event as one JSON line",
		Long: `watch connects and prints each event the child sends until the child
exits or the process receives SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := &eventPrinter{out: cmd.OutOrStdout()}

			return withSession(cmd, flags, printer.options(), func(ctx context.Context, c sidecar.Client) error {
				return printer.watch(ctx, c)
			})
		},
	}
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <query>",
		Short: "Look up a place, then watch for location updates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			printer := &eventPrinter{out: cmd.OutOrStdout()}

			return withSession(cmd, flags, printer.options(), func(ctx context.Context, c sidecar.Client) error {
				loc, err := sidecar.LookupLocation(ctx, c, query)
				if err != nil {
					return err
				}

				if err := printer.print(map[string]any{"query": query, "location": loc}); err != nil {
					return err
				}

				return printer.watch(ctx, c)
			})
		},
	}
}

func newServeMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the request and lookup_location tools over MCP on stdio",
		Long: `serve-mcp connects to the child, then acts as an MCP server on this
process's stdin and stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, nil, func(ctx context.Context, c sidecar.Client) error {
				log, err := newLogger(flags.logLevel)
				if err != nil {
					return err
				}

				server := tools.NewServer(log, "sidecar", version, c)

				return server.Serve(ctx, &mcp.StdioTransport{})
			})
		},
	}
}

// eventPrinter writes events as JSON lines. It is installed as the event
// handler at connect so nothing sent before the loop starts is lost.
type eventPrinter struct {
	out io.Writer

	mu  sync.Mutex
	err error
}

func (p *eventPrinter) options() []sidecar.Option {
	return []sidecar.Option{
		sidecar.WithEventHandler(func(msg sidecar.Message) {
			_ = p.print(msg)
		}),
	}
}

// print writes v unless an earlier write failed.
func (p *eventPrinter) print(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err == nil {
		p.err = printJSON(p.out, v)
	}

	return p.err
}

// watch blocks until the child exits. Cancellation is a normal end.
func (p *eventPrinter) watch(ctx context.Context, c sidecar.Client) error {
	err := c.RunLoop(ctx, nil)
	if stderrors.Is(err, context.Canceled) {
		err = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return stderrors.Join(err, p.err)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	return enc.Encode(v)
}

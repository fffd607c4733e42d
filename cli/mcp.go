package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acctwatch/server/mcp"
	"github.com/acctwatch/server/mutator"
	"github.com/acctwatch/server/validator"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type MCPOptions struct {
	*RootOptions
	URL       string
	RateLimit float64
}

func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MCPOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve ledger tools over MCP stdio",
		Long: `Expose account_get, counter_get, counter_increment, counter_close and
slot_get to an MCP client on stdin/stdout.

Without --url a private validator is started and its counter keys are
printed to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "pubsub URL of a running validator")
	cmd.Flags().Float64Var(&opts.RateLimit, "rate", 0, "max submissions per second (0 = unlimited)")

	return cmd
}

func runMCP(ctx context.Context, cmd *cobra.Command, opts *MCPOptions) error {
	url := opts.URL
	if url == "" {
		keys, err := genesisKeys(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid genesis key", err)
		}
		v, err := validator.Start(ctx, validator.Config{Keys: keys, CommitBuffer: opts.Config.CommitBuffer})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start validator", err)
		}
		defer v.Close(context.WithoutCancel(ctx))
		url = v.PubsubURL()

		for i, key := range keys {
			fmt.Fprintf(cmd.ErrOrStderr(), "Counter #%d: %s\n", i+1, key)
		}
	}

	client, err := mutator.Dial(ctx, url, mutator.Options{RateLimit: rate.Limit(opts.RateLimit)})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer client.Close()

	srv := mcp.NewServer(client)
	if err := srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "mcp server failed", err)
	}
	return nil
}

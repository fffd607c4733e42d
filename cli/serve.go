package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acctwatch/server/config"
	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/logger"
	"github.com/acctwatch/server/validator"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type ServeOptions struct {
	*RootOptions
	QR bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the test validator",
		Long: `Start the in-memory ledger with provisioned counter accounts and serve
JSON-RPC pubsub on /ws until interrupted.

Example:
  acctwatch serve --config acctwatch.yaml
  PORT=8900 AUTH_TOKEN=secret acctwatch serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.QR, "qr", false, "print the pubsub URL as a QR code on stderr")

	return cmd
}

// genesisKeys returns the configured keys followed by cfg.Accounts fresh ones.
func genesisKeys(cfg config.Config) ([]ledger.Key, error) {
	keys := make([]ledger.Key, 0, len(cfg.Keys)+cfg.Accounts)
	for _, s := range cfg.Keys {
		key, err := ledger.ParseKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	for range cfg.Accounts {
		keys = append(keys, ledger.NewKey())
	}
	return keys, nil
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *ServeOptions) error {
	cfg := opts.Config
	keys, err := genesisKeys(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid genesis key", err)
	}

	v, err := validator.Start(ctx, validator.Config{
		Addr:           cfg.Addr,
		Keys:           keys,
		Token:          cfg.Token,
		CommitBuffer:   cfg.CommitBuffer,
		ConfirmTimeout: cfg.ConfirmTimeout,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start validator", err)
	}

	if opts.ConfigPath != "" {
		err := config.Watch(ctx, opts.ConfigPath, func(next config.Config) {
			logger.SetLevel(next.Log.Level)
			slog.Info("log level updated", "level", logger.Level().String())
		})
		if err != nil {
			slog.Warn("config watch unavailable", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		writeResult(out, opts.Format, map[string]any{"pubsub_url": v.PubsubURL(), "keys": keys}, nil)
	} else {
		fmt.Fprintf(out, "Pubsub URL: %s\n", v.PubsubURL())
		for i, key := range keys {
			fmt.Fprintf(out, "Counter #%d: %s\n", i+1, key)
		}
	}
	if opts.QR {
		qrterminal.GenerateHalfBlock(v.PubsubURL(), qrterminal.L, cmd.ErrOrStderr())
	}

	<-ctx.Done()
	slog.Info("shutting down")

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := v.Close(closeCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	return nil
}

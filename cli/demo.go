package cli

import (
	"errors"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/scenario"
	"github.com/spf13/cobra"
)

type DemoOptions struct {
	*RootOptions
	URL        string
	Keys       []string
	Increments int
}

func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Show that only account subscriptions detect a close",
		Long: `Subscribe to two counter accounts and to the counter program, increment
both counters, close the second one and compare the notification counts.

Without --url a private validator is started. Exits non-zero if the counts
differ from the expected ones or a subscription is left open.

Example:
  acctwatch demo
  acctwatch demo --url ws://127.0.0.1:8900/ws --key <key1> --key <key2>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "pubsub URL of a running validator")
	cmd.Flags().StringSliceVar(&opts.Keys, "key", nil, "counter keys on the running validator (exactly two)")
	cmd.Flags().IntVarP(&opts.Increments, "increments", "n", 3, "increments per account")

	return cmd
}

func runDemo(cmd *cobra.Command, opts *DemoOptions) error {
	cfg := scenario.Config{URL: opts.URL, Increments: opts.Increments}
	if opts.URL != "" {
		if len(opts.Keys) != 2 {
			return WrapExitError(ExitCommandError, "invalid flags", errors.New("--url requires exactly two --key values"))
		}
		for i, s := range opts.Keys {
			key, err := ledger.ParseKey(s)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid flags", err)
			}
			cfg.Keys[i] = key
		}
	}
	if opts.Format == "text" {
		cfg.Out = cmd.OutOrStdout()
	}

	result, err := scenario.Run(cmd.Context(), cfg)
	if werr := writeResult(cmd.OutOrStdout(), opts.Format, result, err); werr != nil {
		return werr
	}
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitFailure, "demo failed", err)
	}
	return nil
}

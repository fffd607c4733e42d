// Package cli wires the acctwatch commands.
package cli

import (
	"fmt"
	"slices"

	"github.com/acctwatch/server/config"
	"github.com/acctwatch/server/logger"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// Config is loaded before any subcommand runs.
	Config config.Config
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "acctwatch",
		Short: "acctwatch - account and program subscriptions",
		Long: `A single-node counter ledger with Solana-style account and program
pubsub, plus a client that shows why only account subscriptions see closes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if opts.Verbose {
				cfg.Log.Level = "debug"
			}
			opts.Config = cfg

			logCfg := cfg.Log.Logger()
			logCfg.Writer = cmd.ErrOrStderr()
			logger.Init(logCfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewMCPCommand(opts))

	return cmd
}

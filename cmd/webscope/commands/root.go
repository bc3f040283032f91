package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vulntor/webscope/cmd/webscope/internal/format"
	"github.com/vulntor/webscope/pkg/appctx"
	"github.com/vulntor/webscope/pkg/config"
	"github.com/vulntor/webscope/pkg/logging"
)

const cliExecutable = "webscope"

// NewCommand constructs the top-level webscope command, wiring global flags,
// configuration loading and logging.
func NewCommand() *cobra.Command {
	var (
		configFile string
		logCloser  io.Closer
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Identify web products from HTTP responses using signatures",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := format.ValidateMode(outputFlag(cmd)); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}

			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}

			cfg := mgr.Get()
			closer, err := logging.Configure(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			logCloser = closer

			ctx := appctx.WithConfig(cmd.Context(), mgr)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().StringP("output", "o", string(format.ModeTable), "Output format (table, json)")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress summaries")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	config.BindFlags(cmd.PersistentFlags())
	config.BindSignatureFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "scan", Title: "Scan Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Signature Commands"})

	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newSignaturesCommand())
	cmd.AddCommand(newFeedCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

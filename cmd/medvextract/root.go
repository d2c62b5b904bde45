package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/medvextract/medvextract-api/internal/config"
	"github.com/medvextract/medvextract-api/internal/platform/logger"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string

	// app overrides application wiring in tests.
	app appOptions
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "medvextract",
		Short:         "Extract follow-up tasks from consult transcripts",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a YAML configuration file (default ./config.yaml when present)")

	root.AddCommand(
		ServeCmd(opts),
		MigrateCmd(opts),
		ExtractCmd(opts),
		StatusCmd(opts),
		TokenCmd(opts),
		ConfigCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// loadForCLI loads configuration and a logger writing to the command's
// stderr so that stdout carries only command output.
func (o *rootOptions) loadForCLI(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.SetupWithWriter(cfg.Server, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, log, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medvextract/medvextract-api/internal/platform/sqlstore"
)

// MigrateCmd applies or inspects job store schema migrations.
func MigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|status|version>",
		Short:     "Run job store schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadForCLI(cmd)
			if err != nil {
				return err
			}

			db, err := sqlstore.Open(cmd.Context(), sqlstore.Options{
				Driver: cfg.Database.Driver,
				URL:    cfg.Database.URL,
			}, log)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer func() { _ = db.Close() }()

			command := sqlstore.MigrationCommand(args[0])
			if err := sqlstore.Migrate(cmd.Context(), db, command, log); err != nil {
				return err
			}

			if command == sqlstore.MigrateVersion || command == sqlstore.MigrateUp || command == sqlstore.MigrateDown {
				version, err := sqlstore.SchemaVersion(cmd.Context(), db)
				if err != nil {
					return fmt.Errorf("failed to read schema version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			}
			return nil
		},
	}
}

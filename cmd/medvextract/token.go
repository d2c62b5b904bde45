package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medvextract/medvextract-api/internal/auth"
)

// TokenCmd issues a bearer token for API clients.
func TokenCmd(opts *rootOptions) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadForCLI(cmd)
			if err != nil {
				return err
			}
			if !cfg.Auth.Enabled() {
				return errors.New("authentication is disabled: set auth.jwt_secret")
			}

			svc, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return fmt.Errorf("failed to initialize auth: %w", err)
			}
			token, err := svc.GenerateToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "token subject, e.g. a client or clinic id")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

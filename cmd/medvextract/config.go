package main

import (
	"github.com/spf13/cobra"

	"github.com/medvextract/medvextract-api/internal/redact"
)

const maskedValue = "********"

// ConfigCmd prints the effective configuration with secrets masked.
func ConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			masked := *cfg
			masked.Database.URL = redact.String(masked.Database.URL)
			masked.Cache.RedisURL = redact.String(masked.Cache.RedisURL)
			masked.Extraction.GeminiAPIKey = mask(masked.Extraction.GeminiAPIKey)
			masked.Extraction.HTTPAuthToken = mask(masked.Extraction.HTTPAuthToken)
			masked.Auth.JWTSecret = mask(masked.Auth.JWTSecret)
			return writeJSON(cmd.OutOrStdout(), masked)
		},
	}
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return maskedValue
}

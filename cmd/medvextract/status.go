package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// StatusCmd prints the state of a submitted task.
func StatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			cfg, log, err := opts.loadForCLI(cmd)
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log, opts.app)
			if err != nil {
				return err
			}
			defer app.cleanup()

			report, err := app.orchestrator.Status(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := statusOutput{
				TaskID: report.JobID.String(),
				Status: strings.ToLower(string(report.Status)),
				Result: report.Result,
				Error:  report.Error,
				Cached: report.Cached,
			}
			if !report.CreatedAt.IsZero() {
				out.CreatedAt = &report.CreatedAt
				out.UpdatedAt = &report.UpdatedAt
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

type statusOutput struct {
	TaskID    string          `json:"task_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Cached    bool            `json:"cached,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medvextract/medvextract-api/internal/domain"
)

// ExtractCmd runs one extraction synchronously and prints the outcome.
func ExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		file      string
		plainText bool
		notes     string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract tasks from one transcript without the HTTP server",
		Long: "Reads a request from --file (\"-\" for stdin) and runs it through the " +
			"pipeline in the foreground. The file holds a JSON request with transcript, " +
			"notes and metadata fields, or plain transcript text with --plain.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readWorkRequest(cmd.InOrStdin(), file, plainText)
			if err != nil {
				return err
			}
			if notes != "" {
				req.Notes = notes
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

			sub, err := app.orchestrator.Run(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}

			if err := writeJSON(cmd.OutOrStdout(), submissionOutput{
				TaskID: sub.JobID.String(),
				Status: strings.ToLower(string(sub.Status)),
				Cached: sub.Cached,
				Result: sub.Result,
				Error:  sub.Error,
			}); err != nil {
				return err
			}
			if sub.Status == domain.JobStatusFailed {
				return fmt.Errorf("extraction failed: %s", sub.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "request file, or - for stdin")
	cmd.Flags().BoolVar(&plainText, "plain", false, "treat the input as plain transcript text")
	cmd.Flags().StringVar(&notes, "notes", "", "clinician notes to attach to the request")
	return cmd
}

type submissionOutput struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Cached bool            `json:"cached,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func readWorkRequest(stdin io.Reader, file string, plainText bool) (domain.WorkRequest, error) {
	var req domain.WorkRequest

	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return req, fmt.Errorf("failed to open request file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return req, fmt.Errorf("failed to read request: %w", err)
	}

	if plainText {
		req.Transcript = string(data)
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("invalid request JSON: %w", err)
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvextract/medvextract-api/internal/config"
	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
	"github.com/medvextract/medvextract-api/internal/mocks"
	"github.com/medvextract/medvextract-api/internal/platform/sqlstore"
)

const testSecret = "an-hmac-secret-that-is-long-enough-for-hs256"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newExtractionServer fakes the remote extraction service.
func newExtractionServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req domain.WorkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transcript == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"tasks":[{"description":"Recheck in two weeks","priority":"medium"}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// writeConfig writes a SQLite-backed configuration using the HTTP provider
// and returns its path. extra is appended verbatim.
func writeConfig(t *testing.T, extractURL, extra string) string {
	t.Helper()
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "jobs.db") + "?_pragma=busy_timeout(5000)"

	content := fmt.Sprintf(`server:
  log_level: error
  shutdown_timeout: 5s
database:
  driver: sqlite
  url: %q
  auto_migrate: true
extraction:
  provider: http
  http_url: %q
resilience:
  initial_delay: 1ms
  max_delay: 5ms
%s`, dsn, extractURL, extra)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadTestConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func runCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestServeEndToEnd(t *testing.T) {
	srv, calls := newExtractionServer(t)
	cfg := loadTestConfig(t, writeConfig(t, srv.URL, ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApplication(ctx, cfg, discardLogger(), appOptions{})
	require.NoError(t, err)
	defer app.cleanup()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + listener.Addr().String()

	done := make(chan error, 1)
	go func() { done <- app.serveListener(ctx, listener) }()

	body := `{"transcript":"Dog limping on left hind leg since Tuesday.","metadata":{"clinic_id":"c-9"}}`
	resp, err := http.Post(base+"/extract-tasks", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sub struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	_ = resp.Body.Close()
	assert.Equal(t, "pending", sub.Status)

	var status struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/task/" + sub.TaskID)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return json.NewDecoder(resp.Body).Decode(&status) == nil && status.Status == "completed"
	}, 5*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"tasks":[{"description":"Recheck in two weeks","priority":"medium"}]}`, string(status.Result))
	assert.Equal(t, int32(1), calls.Load())

	resp, err = http.Get(base + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeRecoversPendingJobs(t *testing.T) {
	srv, _ := newExtractionServer(t)
	path := writeConfig(t, srv.URL, "")
	cfg := loadTestConfig(t, path)
	ctx := context.Background()

	// A job left PENDING by a previous process.
	first, err := newApplication(ctx, cfg, discardLogger(), appOptions{})
	require.NoError(t, err)
	job, err := domain.NewJob(domain.WorkRequest{Transcript: "Left over from a crash."}, "feedface")
	require.NoError(t, err)
	require.NoError(t, sqlstore.NewJobStore(first.db, discardLogger()).CreateJob(ctx, job))
	first.cleanup()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	app, err := newApplication(serveCtx, cfg, discardLogger(), appOptions{})
	require.NoError(t, err)
	defer app.cleanup()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- app.serveListener(serveCtx, listener) }()

	require.Eventually(t, func() bool {
		report, err := app.orchestrator.Status(ctx, job.ID)
		return err == nil && report.Status == domain.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestExtractAndStatusCommands(t *testing.T) {
	srv, _ := newExtractionServer(t)
	opts := &rootOptions{configPath: writeConfig(t, srv.URL, "")}

	out, err := runCommand(t, ExtractCmd(opts),
		`{"transcript":"Cat sneezing, recheck in a week.","metadata":{"clinic_id":"c-1"}}`)
	require.NoError(t, err)

	var sub submissionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &sub), out)
	assert.Equal(t, "completed", sub.Status)
	assert.Contains(t, string(sub.Result), "Recheck in two weeks")

	out, err = runCommand(t, StatusCmd(opts), "", sub.TaskID)
	require.NoError(t, err)
	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status), out)
	assert.Equal(t, "completed", status.Status)
	assert.NotNil(t, status.CreatedAt)

	_, err = runCommand(t, StatusCmd(opts), "", "not-a-uuid")
	assert.Error(t, err)
}

func TestExtractCommandPlainTextFailure(t *testing.T) {
	path := writeConfig(t, "http://127.0.0.1:1/extract", "")
	extractor := mocks.NewMockExtractor(nil, extraction.ErrContentBlocked)
	opts := &rootOptions{configPath: path, app: appOptions{extractor: extractor}}

	out, err := runCommand(t, ExtractCmd(opts), "Owner reports vomiting twice overnight.", "--plain")
	require.Error(t, err)

	var sub submissionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &sub), out)
	assert.Equal(t, "failed", sub.Status)
	assert.NotContains(t, sub.Error, "vomiting")
	require.Len(t, extractor.Requests(), 1)
	assert.Equal(t, "Owner reports vomiting twice overnight.", extractor.Requests()[0].Transcript)
}

func TestTokenCommand(t *testing.T) {
	srv, _ := newExtractionServer(t)

	disabled := &rootOptions{configPath: writeConfig(t, srv.URL, "")}
	_, err := runCommand(t, TokenCmd(disabled), "", "--subject", "clinic-9")
	assert.ErrorContains(t, err, "authentication is disabled")

	enabled := &rootOptions{configPath: writeConfig(t, srv.URL, "auth:\n  jwt_secret: "+testSecret+"\n")}
	out, err := runCommand(t, TokenCmd(enabled), "", "--subject", "clinic-9")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	_, err = runCommand(t, TokenCmd(enabled), "")
	assert.Error(t, err, "subject is required")
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	opts := &rootOptions{configPath: writeConfig(t, "http://extractor.internal/extract",
		"auth:\n  jwt_secret: "+testSecret+"\n")}

	out, err := runCommand(t, ConfigCmd(opts), "")
	require.NoError(t, err)
	assert.NotContains(t, out, testSecret)
	assert.Contains(t, out, maskedValue)
	assert.Contains(t, out, "extractor.internal")
}

func TestMigrateCommand(t *testing.T) {
	srv, _ := newExtractionServer(t)
	opts := &rootOptions{configPath: writeConfig(t, srv.URL, "")}

	out, err := runCommand(t, MigrateCmd(opts), "", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 1")

	out, err = runCommand(t, MigrateCmd(opts), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 1")

	_, err = runCommand(t, MigrateCmd(opts), "", "sideways")
	assert.Error(t, err)
}

func TestNewApplicationErrors(t *testing.T) {
	srv, _ := newExtractionServer(t)
	ctx := context.Background()

	cfg := loadTestConfig(t, writeConfig(t, srv.URL, ""))
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisURL = "not a url"
	_, err := newApplication(ctx, cfg, discardLogger(), appOptions{})
	assert.ErrorContains(t, err, "failed to initialize cache")

	cfg = loadTestConfig(t, writeConfig(t, srv.URL, ""))
	cfg.Extraction.SchemaPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = newApplication(ctx, cfg, discardLogger(), appOptions{})
	assert.ErrorContains(t, err, "failed to load output schema")

	cfg = loadTestConfig(t, writeConfig(t, srv.URL, ""))
	cfg.Database.URL = "file:" + filepath.Join(t.TempDir(), "missing", "dir", "jobs.db") + "?mode=ro"
	_, err = newApplication(ctx, cfg, discardLogger(), appOptions{})
	assert.ErrorContains(t, err, "failed to initialize database")
}

func TestReadWorkRequest(t *testing.T) {
	t.Parallel()

	req, err := readWorkRequest(strings.NewReader(`{"transcript":"t","notes":"n","metadata":{"a":1}}`), "-", false)
	require.NoError(t, err)
	assert.Equal(t, "t", req.Transcript)
	assert.Equal(t, "n", req.Notes)

	_, err = readWorkRequest(strings.NewReader(`{`), "-", false)
	assert.ErrorContains(t, err, "invalid request JSON")

	path := filepath.Join(t.TempDir(), "visit.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain transcript"), 0o600))
	req, err = readWorkRequest(nil, path, true)
	require.NoError(t, err)
	assert.Equal(t, "plain transcript", req.Transcript)

	_, err = readWorkRequest(nil, filepath.Join(t.TempDir(), "missing"), true)
	assert.Error(t, err)
}

package ciutil

import (
	"log/slog"
	"net/url"
	"testing"
)

// TestDatabaseURL returns the PostgreSQL URL for integration tests, or ""
// when none is configured.
func TestDatabaseURL(logger *slog.Logger) string {
	return GetEnvWithFallbacks([]string{EnvTestDBURL, EnvDatabaseURL, EnvAppDBURL}, "", logger)
}

// RequirePostgres returns the integration database URL. Without one the test
// is skipped locally and fails in CI, where a database service is expected.
func RequirePostgres(t testing.TB) string {
	t.Helper()

	dbURL := TestDatabaseURL(nil)
	if dbURL == "" {
		if IsCI() {
			t.Fatalf("%s must be set in CI", EnvTestDBURL)
		}
		t.Skipf("%s not set; skipping PostgreSQL integration test", EnvTestDBURL)
	}

	u, err := url.Parse(dbURL)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		t.Fatalf("%s must be a postgres:// URL", EnvTestDBURL)
	}
	return dbURL
}

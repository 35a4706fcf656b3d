package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/matchbook/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.SQLiteDSN = filepath.Join(t.TempDir(), "matchbook.db")
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMigrateCommand(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "matchbook.db")

	out, err := execute(t, "--dsn", dsn, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 migration(s)")
	assert.Contains(t, out, "current version: 002")
	assert.Contains(t, out, "pending: 0")

	out, err = execute(t, "--dsn", dsn, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 0 migration(s)")
}

func TestSeedCommand(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "matchbook.db")

	out, err := execute(t, "--dsn", dsn, "seed")
	require.NoError(t, err)
	assert.Equal(t, "seeded 15 persona(s)\n", out)

	catalog := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(`personas:
  - alias: Gardener
    category: student
    bio:
      about: Grows ideas slowly.
`), 0o600))

	out, err = execute(t, "--dsn", dsn, "seed", "--file", catalog)
	require.NoError(t, err)
	assert.Equal(t, "seeded 1 persona(s)\n", out)

	_, err = execute(t, "--dsn", dsn, "seed", "--file", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRootCommand_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("MATCHBOOK_HTTP_PORT", "not-a-port")

	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATCHBOOK_HTTP_PORT")
}

func TestRootCommand_LoadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "from-env.db")
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("MATCHBOOK_SQLITE_DSN="+dsn+"\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MATCHBOOK_SQLITE_DSN") })

	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--env-file", envFile, "migrate"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	_, err := os.Stat(dsn)
	assert.NoError(t, err)
}

func TestBuildApp_ServesAPI(t *testing.T) {
	ctx := context.Background()
	a, err := buildApp(ctx, testConfig(t), discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	count, err := a.personas.SeedCatalog(ctx, a.catalog)
	require.NoError(t, err)
	assert.Equal(t, len(a.catalog), count)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/personas?category=fantasy", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Personas []struct {
			Alias string `json:"alias"`
		} `json:"personas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Personas, 4)

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), "matchbook_persona_cache_lookups_total")
}

func TestBuildApp_UsesRedisWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	a, err := buildApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"redis":"ok"`), rec.Body.String())

	mr.Close()
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildApp_FailsWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RedisAddr = addr
	_, err := buildApp(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

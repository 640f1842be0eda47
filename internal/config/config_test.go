package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev/deduper/internal/storage"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deduper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "deduper.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(WriteDefault()) mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	err = WriteDefault(path)
	assert.ErrorContains(t, err, "already exists")
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
database:
  driver: postgres
  host: db.internal
  name: dedup
github:
  app_id: "12345"
  installation_id: 678
sync:
  concurrency: 4
  pass_timeout: 30m
  update_titles: false
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset fields keep defaults")
	assert.Equal(t, storage.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "12345", cfg.GitHub.AppID)
	assert.Equal(t, int64(678), cfg.GitHub.InstallationID)
	assert.Equal(t, "minecraft-dev", cfg.GitHub.Organization)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Sync.PassTimeout)
	assert.False(t, cfg.Sync.UpdateTitles)
	assert.True(t, cfg.Sync.RunOnStart)
	assert.Equal(t, "minecraft-dev-autoreporter", cfg.Sync.ReporterLogin)

	sc := cfg.StorageConfig()
	assert.Equal(t, "dedup", sc.Postgres.Database)
	assert.Equal(t, "0.0.0.0:9090", cfg.ServerConfig().Addr)
	assert.Equal(t, "MinecraftDev", cfg.TrackerConfig().Repo)
	assert.Equal(t, int64(678), cfg.AppConfig().InstallationID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "empty", content: "\n", wantErr: "is empty"},
		{name: "malformed", content: "server: [", wantErr: "failed to parse"},
		{name: "bad port", content: "server:\n  port: 70000\n", wantErr: "server.port"},
		{name: "bad driver", content: "database:\n  driver: mysql\n", wantErr: "unknown storage driver"},
		{name: "bad sync", content: "sync:\n  concurrency: 0\n", wantErr: "concurrency"},
		{name: "bad log level", content: "log:\n  level: loud\n", wantErr: "log.level"},
		{name: "bad log format", content: "log:\n  format: xml\n", wantErr: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")

	t.Setenv("DEDUPER_SERVER_PORT", "7070")
	t.Setenv("DEDUPER_DB_DRIVER", "postgres")
	t.Setenv("DEDUPER_DB_PASSWORD", "hunter2")
	t.Setenv("DEDUPER_WEBHOOK_SECRET", "shh")
	t.Setenv("DEDUPER_GITHUB_INSTALLATION_ID", "42")
	t.Setenv("DEDUPER_SYNC_CONCURRENCY", "16")
	t.Setenv("DEDUPER_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, storage.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "shh", cfg.GitHub.WebhookSecret)
	assert.Equal(t, int64(42), cfg.GitHub.InstallationID)
	assert.Equal(t, 16, cfg.Sync.Concurrency)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadInvalidEnv(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")
	t.Setenv("DEDUPER_DB_PORT", "not-a-number")

	_, err := Load(path)
	assert.ErrorContains(t, err, "DEDUPER_DB_PORT")
}

func TestValidateGitHubApp(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidateGitHubApp())

	cfg.GitHub.AppID = "1"
	assert.NoError(t, cfg.ValidateGitHubApp())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.Error(t, err)
}

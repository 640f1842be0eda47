package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev/deduper/internal/config"
)

// useConfig installs a default config backed by a temporary sqlite database
func useConfig(t *testing.T) *config.Config {
	t.Helper()
	prevCfg, prevLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })

	cfg = config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "deduper.db")
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"close-duplicates", "init", "migrate", "serve", "status", "sweep"}

	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestConfigAnnotations(t *testing.T) {
	assert.Equal(t, "none", initCmd.Annotations["config"])
	assert.Equal(t, "write-default", serveCmd.Annotations["config"])

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "deduper.yaml", flag.DefValue)

	closeFlag := sweepCmd.Flags().Lookup("close")
	require.NotNil(t, closeFlag)
	assert.Equal(t, "false", closeFlag.DefValue)
}

func TestCommandsReturnErrors(t *testing.T) {
	for _, c := range []string{"close-duplicates", "init", "migrate", "serve", "status", "sweep"} {
		cmd, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		assert.Nil(t, cmd.Run, c)
		assert.NotNil(t, cmd.RunE, c)
	}
}

func TestLocalCommands(t *testing.T) {
	useConfig(t)

	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))
	require.NoError(t, statusCmd.RunE(statusCmd, nil))
}

func TestCommandFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *config.Config)
		run   func() error
	}{
		{
			name:  "serve without webhook secret",
			setup: func(c *config.Config) { c.GitHub.WebhookSecret = "" },
			run:   func() error { return serveCmd.RunE(serveCmd, nil) },
		},
		{
			name:  "sweep without app credentials",
			setup: func(c *config.Config) { c.GitHub.AppID = "" },
			run:   func() error { return sweepCmd.RunE(sweepCmd, nil) },
		},
		{
			name:  "close without app credentials",
			setup: func(c *config.Config) { c.GitHub.AppID = "" },
			run:   func() error { return closeCmd.RunE(closeCmd, nil) },
		},
		{
			name:  "status with unknown driver",
			setup: func(c *config.Config) { c.Database.Driver = "bogus" },
			run:   func() error { return statusCmd.RunE(statusCmd, nil) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(useConfig(t))
			assert.Error(t, tt.run())
		})
	}
}

func TestOpenStore(t *testing.T) {
	useConfig(t)

	store, err := openStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcdev/deduper/internal/auth"
	"github.com/mcdev/deduper/internal/config"
	"github.com/mcdev/deduper/internal/dbopen"
	"github.com/mcdev/deduper/internal/deduplication"
	"github.com/mcdev/deduper/internal/storage"
	"github.com/mcdev/deduper/internal/tracker"
)

var (
	configPath string

	// Set by PersistentPreRun for commands that need them
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deduper",
	Short: "Deduplicate auto-reported crash issues on GitHub",
	Long: `deduper tracks crash reports filed by the reporter account, fingerprints
their stack traces, and closes new reports that duplicate an existing one.

Maintainers mark the canonical report by commenting "Duplicate of #N" on a
duplicate. From then on every report with the same trace is closed with a
pointer to #N.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["config"] == "none" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if errors.Is(err, fs.ErrNotExist) {
			if cmd.Annotations["config"] == "write-default" {
				writeDefaultAndExit()
			}
			return fmt.Errorf("config file %s not found; run 'deduper init' to write a default config file", configPath)
		}
		if err != nil {
			return err
		}

		logger, err = cfg.Log.NewLogger(os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

// writeDefaultAndExit writes the default config file and exits so the operator
// can fill in credentials before the first real start
func writeDefaultAndExit() {
	if err := config.WriteDefault(configPath); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s failed to write default config: %v\n", red("Error:"), err)
		os.Exit(1)
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Wrote default config to %s\n", green("✓"), configPath)
	fmt.Printf("  Fill in the github section (app_id, private_key_file, webhook_secret) and run again.\n")
	os.Exit(0)
}

// openStore opens the configured storage backend
func openStore(ctx context.Context) (storage.Storage, error) {
	store, err := dbopen.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// newTrackerClient builds a GitHub client authenticated as the app installation
func newTrackerClient() (tracker.Client, error) {
	if err := cfg.ValidateGitHubApp(); err != nil {
		return nil, err
	}

	signer, err := auth.NewAppSignerFromFile(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load GitHub App key: %w", err)
	}
	minter, err := tracker.NewAppClient(signer, cfg.AppConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App client: %w", err)
	}
	creds := auth.NewCredentialManager(minter, auth.IssuesWrite, logger)

	httpClient := &http.Client{
		Transport: &auth.Transport{Credentials: creds},
		Timeout:   30 * time.Second,
	}
	client, err := tracker.NewGitHubClient(httpClient, cfg.TrackerConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return client, nil
}

// newEngine wires the engine to the store and tracker
func newEngine(store storage.Storage) (*deduplication.Engine, error) {
	client, err := newTrackerClient()
	if err != nil {
		return nil, err
	}
	engine, err := deduplication.New(store, client, cfg.Sync, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, nil
}

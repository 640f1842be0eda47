package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// schemaVersioner is implemented by backends with versioned migrations
type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (int, error)
	RollbackSchema(ctx context.Context) error
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Open the configured database and bring its schema up to date.

Opening the database applies pending migrations, so every command does this
implicitly; migrate does nothing else. With --down, the most recent SQLite
migration is reverted instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		down, _ := cmd.Flags().GetBool("down")
		ctx := context.Background()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		green := color.New(color.FgGreen).SprintFunc()
		versioned, ok := store.(schemaVersioner)
		if !ok {
			if down {
				return errors.New("--down is only supported for the sqlite driver")
			}
			fmt.Printf("%s Schema is up to date (%s)\n", green("✓"), cfg.Database.Driver)
			return nil
		}

		if down {
			if err := versioned.RollbackSchema(ctx); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
		}
		version, err := versioned.SchemaVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		fmt.Printf("%s Schema at version %d (%s)\n", green("✓"), version, cfg.Database.Path)
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("down", false, "Revert the most recent migration (sqlite only)")
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var closeCmd = &cobra.Command{
	Use:   "close-duplicates",
	Short: "Close open issues whose trace already has a canonical issue",
	Long: `Run the close pass on its own, using the state from the last sweep.

Each candidate is re-checked on GitHub before it is closed. Candidates that
fail are left open and retried by the next pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		engine, err := newEngine(store)
		if err != nil {
			return err
		}

		report, err := engine.CloseDuplicates(ctx)
		if err != nil {
			return fmt.Errorf("close pass failed: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Close pass complete: %s\n", green("✓"), report)
		if report.Failed > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("  %s %d issue(s) failed and will be retried\n", yellow("⚠"), report.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(closeCmd)
}

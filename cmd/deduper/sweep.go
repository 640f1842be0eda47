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

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one full sync from GitHub",
	Long: `Run a single full sweep: list every issue, fingerprint the reporter's crash
reports, and collect "Duplicate of #N" markers from maintainers.

With --close, the close pass runs afterwards, as it does in serve.

Example:
  $ deduper sweep --close
  ✓ Sweep complete: listed=812 tracked=640 ...
  ✓ Close pass complete: candidates=3 closed=3 ...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeAfter, _ := cmd.Flags().GetBool("close")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if cfg.Sync.PassTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Sync.PassTimeout)
			defer cancel()
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		engine, err := newEngine(store)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		report, err := engine.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		fmt.Printf("%s Sweep complete: %s\n", green("✓"), report)
		if report.ScanErrors > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("  %s %d issue(s) could not be scanned; see the log\n", yellow("⚠"), report.ScanErrors)
		}

		if !closeAfter {
			return nil
		}
		closeReport, err := engine.CloseDuplicates(ctx)
		if err != nil {
			return fmt.Errorf("close pass failed: %w", err)
		}
		fmt.Printf("%s Close pass complete: %s\n", green("✓"), closeReport)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Bool("close", false, "Run the close pass after the sweep")
	rootCmd.AddCommand(sweepCmd)
}

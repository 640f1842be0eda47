package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked issue counts and pending closes",
	Long:  `Display row counts from the database and the issues the next close pass would act on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStatistics(ctx)
		if err != nil {
			return fmt.Errorf("failed to get statistics: %w", err)
		}
		closeable, err := store.FindCloseable(ctx)
		if err != nil {
			return fmt.Errorf("failed to find closeable issues: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Deduper Status ==="))
		fmt.Printf("%s\n", yellow("Database:"))
		fmt.Printf("  Driver:        %s\n", cfg.Database.Driver)
		fmt.Printf("  Fingerprints:  %d\n", stats.Fingerprints)
		fmt.Printf("  Open issues:   %d\n", stats.OpenIssues)
		fmt.Printf("  Closed issues: %d\n", stats.ClosedIssues)
		fmt.Printf("  Duplicates:    %d\n", stats.DuplicateIssues)
		fmt.Printf("  Targets:       %d\n", stats.TargetAssignments)
		fmt.Println()

		fmt.Printf("%s\n", yellow("Pending closes:"))
		if len(closeable) == 0 {
			fmt.Printf("  %s\n\n", gray("None"))
			return nil
		}
		for _, c := range closeable {
			target, err := store.GetTarget(ctx, c.FingerprintID)
			if err != nil {
				return fmt.Errorf("failed to get target: %w", err)
			}
			if target == nil {
				continue
			}
			fmt.Printf("  %s #%d → #%d\n", green("●"), c.IssueID, target.IssueID)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

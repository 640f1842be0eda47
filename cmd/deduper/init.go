package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcdev/deduper/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to the --config path.

Secrets can be left out of the file and supplied through the environment:
  DEDUPER_WEBHOOK_SECRET, DEDUPER_DB_PASSWORD

Example:
  deduper init
  deduper init --config /etc/deduper/deduper.yaml`,
	Annotations: map[string]string{"config": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configPath); err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote default config to %s\n", green("✓"), configPath)
		fmt.Println("\nNext steps:")
		fmt.Println("  1. Set github.app_id and github.private_key_file")
		fmt.Println("  2. Set github.webhook_secret or DEDUPER_WEBHOOK_SECRET")
		fmt.Println("  3. Run 'deduper migrate', then 'deduper serve'")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

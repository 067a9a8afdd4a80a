// cmd/reset.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resetClearItems bool
	resetCount      bool
	resetYes        bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark keyword responses for reprocessing",
	Long: `Clears the processed stamp on every response of the keyword endpoint family,
sandbox responses included, so the next ingest run reads them again.

With --clear-items the keyword_research_items table is emptied first.

Examples:
  relaycache reset
  relaycache reset --clear-items --count --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		p := a.pipeline()

		if !resetClearItems {
			n, err := p.ResetProcessed(ctx)
			if err != nil {
				return err
			}
			goodColor.Printf("✅ Reset %d responses for %s\n", n, a.cfg.Ingest.Client)
			return nil
		}

		if !resetYes {
			warnColor.Println("--clear-items deletes every keyword_research_items row; pass --yes to confirm")
			return nil
		}
		stats, err := p.ClearProcessedTables(ctx, resetCount)
		if err != nil {
			return err
		}
		if stats.ItemsDeleted >= 0 {
			fmt.Printf("Deleted %d items\n", stats.ItemsDeleted)
		}
		goodColor.Printf("✅ Reset %d responses for %s\n", stats.ResponsesReset, a.cfg.Ingest.Client)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&resetClearItems, "clear-items", false, "Also delete every keyword_research_items row")
	resetCmd.Flags().BoolVar(&resetCount, "count", false, "Count deleted items (with --clear-items)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Confirm destructive operations")
}

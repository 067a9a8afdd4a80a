// cmd/migrate.go
package cmd

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables for every configured client",
	Long: `Creates api_errors, keyword_research_items and one <client>_responses table
per configured client. Tables are also created on first use; this command
exists for provisioning a database ahead of time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// openApp migrates the shared tables.
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, name := range a.cfg.ClientNames() {
			table, err := a.cache.EnsureTable(ctx, name)
			if err != nil {
				return err
			}
			goodColor.Printf("✅ %s\n", table)
		}
		goodColor.Println("✅ api_errors")
		goodColor.Println("✅ keyword_research_items")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

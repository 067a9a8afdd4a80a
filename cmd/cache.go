// cmd/cache.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheYes bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage stored responses",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <client>",
	Short: "Delete every stored response of a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheYes {
			warnColor.Printf("This deletes every cached response of %s; pass --yes to confirm\n", args[0])
			return nil
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.cache.Clear(ctx, args[0]); err != nil {
			return err
		}
		goodColor.Printf("✅ Cleared cache for %s\n", args[0])
		return nil
	},
}

var cachePendingCmd = &cobra.Command{
	Use:   "pending <client>",
	Short: "Count responses not yet processed by ingest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sel := ingestSelector(a)
		sel.Endpoints = nil
		n, err := a.cache.CountUnprocessed(ctx, args[0], sel)
		if err != nil {
			return err
		}
		fmt.Printf("%d unprocessed responses for %s\n", n, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePendingCmd)
	cacheClearCmd.Flags().BoolVarP(&cacheYes, "yes", "y", false, "Confirm deletion")
}

// cmd/ratelimit.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var ratelimitCmd = &cobra.Command{
	Use:     "ratelimit",
	Aliases: []string{"rl"},
	Short:   "Inspect or clear per-client rate limit windows",
}

var ratelimitStatusCmd = &cobra.Command{
	Use:   "status [client...]",
	Short: "Show remaining attempts and window reset time",
	Long: `Shows the remaining attempts in the current window for each client (all
configured clients when none are given). With the memory backend each CLI
invocation starts with empty counters; use the redis backend to share them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		clients := args
		if len(clients) == 0 {
			clients = a.cfg.ClientNames()
		}

		limits := limitsFrom(a.cfg.RateLimit)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		headerColor.Fprintf(w, "CLIENT\tREMAINING\tMAX\tWINDOW\tRESETS IN\n")
		for _, c := range clients {
			remaining, err := a.limiter.Remaining(ctx, c)
			if err != nil {
				return err
			}
			in, err := a.limiter.AvailableIn(ctx, c)
			if err != nil {
				return err
			}
			lim := limits.For(c)

			fmt.Fprintf(w, "%s\t", c)
			if remaining == 0 {
				badColor.Fprintf(w, "%d", remaining)
			} else {
				goodColor.Fprintf(w, "%d", remaining)
			}
			fmt.Fprintf(w, "\t%d\t%s\t%s\n", lim.MaxAttempts, lim.Decay, in.Round(time.Second))
		}
		return nil
	},
}

var ratelimitClearCmd = &cobra.Command{
	Use:   "clear <client>",
	Short: "Drop a client's counter so its window starts fresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.limiter.Clear(ctx, args[0]); err != nil {
			return err
		}
		goodColor.Printf("✅ Cleared rate limit counter for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)
	ratelimitCmd.AddCommand(ratelimitStatusCmd)
	ratelimitCmd.AddCommand(ratelimitClearCmd)
}

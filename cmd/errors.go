// cmd/errors.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/relaycache/internal/errorlog"
)

var errorsLimit int

var errorsCmd = &cobra.Command{
	Use:   "errors [client]",
	Short: "List recent entries of the API error log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		client := ""
		if len(args) == 1 {
			client = args[0]
		}
		records, err := a.errorLog.Recent(ctx, client, errorsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No errors logged")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		headerColor.Fprintf(w, "TIME\tCLIENT\tTYPE\tLEVEL\tMESSAGE\n")
		for _, r := range records {
			levelColor := warnColor
			if r.Level == errorlog.LevelError {
				levelColor = badColor
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Client, r.Type)
			levelColor.Fprintf(w, "%s", r.Level)
			msg := r.Message
			if r.APIMessage != "" {
				msg += " (" + r.APIMessage + ")"
			}
			fmt.Fprintf(w, "\t%s\n", msg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(errorsCmd)
	errorsCmd.Flags().IntVarP(&errorsLimit, "limit", "n", 20, "Number of entries to show")
}

// cmd/ingest.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/relaycache/internal/cache"
	"github.com/aceteam-ai/relaycache/internal/ingest"
)

var (
	ingestLimit     int
	ingestBatchSize int
	ingestWatch     bool
	ingestDryRun    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Flatten cached keyword-research responses into keyword_research_items",
	Long: `Reads unprocessed responses of the keyword endpoint family from the ingest
client's response table, writes one row per keyword item and marks each
response as processed. Responses from sandbox hosts are skipped unless
ingest.skip_sandbox is false.

Examples:
  # Drain the whole backlog in batches of 100
  relaycache ingest

  # Process at most 10 responses
  relaycache ingest --limit 10

  # Keep draining every ingest.interval until interrupted
  relaycache ingest --watch`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	p := a.pipeline()

	if ingestDryRun {
		n, err := a.cache.CountUnprocessed(ctx, a.cfg.Ingest.Client, ingestSelector(a))
		if err != nil {
			return err
		}
		fmt.Printf("%d unprocessed responses for %s\n", n, a.cfg.Ingest.Client)
		return nil
	}

	batchSize := ingestBatchSize
	if batchSize <= 0 {
		batchSize = a.cfg.Ingest.BatchSize
	}

	if ingestWatch {
		r := ingest.NewRunner(ingest.RunnerConfig{
			Pipeline:  p,
			Interval:  a.cfg.Ingest.Interval,
			BatchSize: batchSize,
			Logger:    a.log,
		})
		headerColor.Printf("Watching %s responses every %s (Ctrl+C to stop)\n", a.cfg.Ingest.Client, a.cfg.Ingest.Interval)
		if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	var stats ingest.Stats
	if ingestLimit > 0 {
		stats, err = p.ProcessResponses(ctx, ingestLimit)
	} else {
		stats, err = p.ProcessResponsesAll(ctx, batchSize)
	}
	printIngestStats(stats)
	return err
}

// ingestSelector mirrors the pipeline's row selection for counting.
func ingestSelector(a *app) cache.Selector {
	sel := cache.Selector{Endpoints: ingest.DefaultKeywordEndpoints}
	if a.cfg.Ingest.SkipSandbox {
		sel.ExcludeBaseURL = a.cfg.Ingest.SandboxMarker
		if sel.ExcludeBaseURL == "" {
			sel.ExcludeBaseURL = ingest.DefaultSandboxMarker
		}
	}
	return sel
}

func printIngestStats(s ingest.Stats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	headerColor.Fprintln(w, "Ingest summary")
	fmt.Fprintf(w, "  Responses:\t%d\n", s.ProcessedResponses)
	fmt.Fprintf(w, "  Batches:\t%d\n", s.BatchesProcessed)
	fmt.Fprintf(w, "  Items:\t%d\n", s.Items)
	goodColor.Fprintf(w, "  Inserted:\t%d\n", s.Inserted)
	goodColor.Fprintf(w, "  Updated:\t%d\n", s.Updated)
	fmt.Fprintf(w, "  Skipped:\t%d\n", s.Skipped)
	if s.Errors > 0 {
		badColor.Fprintf(w, "  Errors:\t%d\n", s.Errors)
	} else {
		fmt.Fprintf(w, "  Errors:\t%d\n", s.Errors)
	}
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "Process at most this many responses (0 = drain everything)")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "Responses per batch (default from ingest.batch_size)")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep draining on ingest.interval until interrupted")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Only count unprocessed responses")
}

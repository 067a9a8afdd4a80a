// Package ingest turns cached task-shaped API responses into flat rows.
//
// A Pipeline selects unprocessed responses of one endpoint family from a
// client's response table, flattens every task, result and item into a
// keyword_research_items row, writes the rows through a Writer and stamps each
// response as processed, whether or not it parsed.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aceteam-ai/relaycache/internal/cache"
	"github.com/aceteam-ai/relaycache/internal/store"
)

// DefaultSandboxMarker identifies sandbox base URLs.
const DefaultSandboxMarker = "sandbox"

// DefaultKeywordEndpoints is the endpoint family feeding KeywordTable.
var DefaultKeywordEndpoints = []string{
	"%dataforseo_labs/google/keyword_ideas/live%",
	"%dataforseo_labs/google/keyword_suggestions/live%",
	"%dataforseo_labs/google/related_keywords/live%",
	"%dataforseo_labs/google/keyword_overview/live%",
	"%dataforseo_labs/google/bulk_keyword_difficulty/live%",
	"%dataforseo_labs/google/keywords_for_site/live%",
}

// ErrMalformedResponse indicates a cached body that is not a task-shaped
// JSON document.
var ErrMalformedResponse = errors.New("malformed response")

// ResponseSource is the slice of the response store a pipeline consumes.
// *cache.SQLStore implements it.
type ResponseSource interface {
	Unprocessed(ctx context.Context, client string, sel cache.Selector, limit int) ([]*cache.CachedResponse, error)
	MarkProcessed(ctx context.Context, client string, id int64, status string, at time.Time) error
	ResetProcessed(ctx context.Context, client string, sel cache.Selector) (int64, error)
}

// PipelineConfig holds configuration for a keyword pipeline.
type PipelineConfig struct {
	// Client owns the response table read by the pipeline
	Client string

	Source ResponseSource
	Writer *Writer

	// DB holds KeywordTable, for ClearProcessedTables
	DB *store.DB

	// Endpoints are SQL LIKE patterns of the endpoint family
	// (default: DefaultKeywordEndpoints)
	Endpoints []string

	// SkipSandbox leaves rows whose base URL contains SandboxMarker untouched
	SkipSandbox   bool
	SandboxMarker string

	Extract ExtractOptions
	Logger  *slog.Logger
	Now     func() time.Time
}

// DefaultPipelineConfig returns a config with sandbox skipping on.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Endpoints:     DefaultKeywordEndpoints,
		SkipSandbox:   true,
		SandboxMarker: DefaultSandboxMarker,
	}
}

// ResponseStats counts the outcome of one processed response.
type ResponseStats struct {
	Items int
	WriteStats
}

// Stats aggregates ProcessResponses and ProcessResponsesAll runs.
type Stats struct {
	ProcessedResponses int
	BatchesProcessed   int
	Errors             int
	Items              int
	WriteStats
}

func (s *Stats) add(o Stats) {
	s.ProcessedResponses += o.ProcessedResponses
	s.BatchesProcessed += o.BatchesProcessed
	s.Errors += o.Errors
	s.Items += o.Items
	s.WriteStats.Add(o.WriteStats)
}

// ClearStats reports what ClearProcessedTables removed. ItemsDeleted is -1
// when counting was not requested.
type ClearStats struct {
	ItemsDeleted   int64
	ResponsesReset int64
}

// Pipeline ingests keyword-research responses.
type Pipeline struct {
	client  string
	source  ResponseSource
	writer  *Writer
	db      *store.DB
	sel     cache.Selector
	extract ExtractOptions
	log     *slog.Logger
	now     func() time.Time
}

// NewPipeline creates a pipeline from cfg.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		client:  cfg.Client,
		source:  cfg.Source,
		writer:  cfg.Writer,
		db:      cfg.DB,
		extract: cfg.Extract,
		log:     cfg.Logger,
		now:     cfg.Now,
	}
	p.sel.Endpoints = cfg.Endpoints
	if len(p.sel.Endpoints) == 0 {
		p.sel.Endpoints = DefaultKeywordEndpoints
	}
	if cfg.SkipSandbox {
		p.sel.ExcludeBaseURL = cfg.SandboxMarker
		if p.sel.ExcludeBaseURL == "" {
			p.sel.ExcludeBaseURL = DefaultSandboxMarker
		}
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ProcessResponse flattens one cached response and writes its items. Tasks
// without a result and results without items are skipped.
func (p *Pipeline) ProcessResponse(ctx context.Context, resp *cache.CachedResponse) (ResponseStats, error) {
	var stats ResponseStats

	dec := json.NewDecoder(bytes.NewReader(resp.ResponseBody))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	tasks, ok := body["tasks"].([]any)
	if !ok {
		return stats, fmt.Errorf("%w: no tasks array", ErrMalformedResponse)
	}

	stamp := resp.UpdatedAt
	if stamp.IsZero() {
		stamp = resp.CreatedAt
	}
	if stamp.IsZero() {
		stamp = p.now()
	}

	var rows []Item
	for _, t := range tasks {
		task := mapOf(t)
		if task == nil {
			continue
		}
		taskData := ExtractTaskData(task)

		for _, r := range listOf(task["result"]) {
			result := mapOf(r)
			if result == nil {
				continue
			}
			merged := Item{}
			for k, v := range taskData {
				merged[k] = v
			}
			for k, v := range ExtractResultMetadata(result) {
				merged[k] = v
			}

			for _, it := range listOf(result["items"]) {
				item := mapOf(it)
				if item == nil {
					continue
				}
				stats.Items++

				var related []any
				if kd, ok := item["keyword_data"].(map[string]any); ok {
					related = listOf(item["related_keywords"])
					item = kd
				}
				row := ExtractKeywordFields(item, related, merged, stamp, p.extract)
				if kw, _ := row["keyword"].(string); kw == "" {
					stats.Skipped++
					continue
				}
				row["response_id"] = resp.ID
				rows = append(rows, row)
			}
		}
	}

	if len(rows) == 0 {
		return stats, nil
	}
	written, err := p.writer.BatchInsertOrUpdate(ctx, rows)
	if err != nil {
		return stats, fmt.Errorf("response %d: %w", resp.ID, err)
	}
	stats.WriteStats.Add(written)
	return stats, nil
}

// ProcessResponses processes up to limit unprocessed responses (all when
// limit <= 0). Every selected response is marked processed; responses that
// fail to parse are counted in Errors.
func (p *Pipeline) ProcessResponses(ctx context.Context, limit int) (Stats, error) {
	var stats Stats
	rows, err := p.source.Unprocessed(ctx, p.client, p.sel, limit)
	if err != nil {
		return stats, err
	}

	for _, resp := range rows {
		rs, err := p.ProcessResponse(ctx, resp)
		status := map[string]any{
			"status":   "ok",
			"items":    rs.Items,
			"inserted": rs.Inserted,
			"updated":  rs.Updated,
			"skipped":  rs.Skipped,
		}
		switch {
		case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrUnknownColumn), errors.Is(err, ErrInvalidTimestamp):
			stats.Errors++
			status = map[string]any{"status": "error", "error": err.Error()}
			p.log.Warn("response failed to parse", "client", p.client, "id", resp.ID, "error", err)
		case err != nil:
			return stats, err
		}

		statusJSON, _ := json.Marshal(status)
		if err := p.source.MarkProcessed(ctx, p.client, resp.ID, string(statusJSON), p.now()); err != nil {
			return stats, err
		}

		stats.ProcessedResponses++
		stats.Items += rs.Items
		stats.WriteStats.Add(rs.WriteStats)
	}
	return stats, nil
}

// ProcessResponsesAll calls ProcessResponses(batchSize) until a batch
// processes nothing, so the whole backlog is drained.
func (p *Pipeline) ProcessResponsesAll(ctx context.Context, batchSize int) (Stats, error) {
	if batchSize <= 0 {
		batchSize = DefaultChunkSize
	}
	var total Stats
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := p.ProcessResponses(ctx, batchSize)
		if err != nil {
			total.add(batch)
			return total, err
		}
		if batch.ProcessedResponses == 0 {
			return total, nil
		}
		batch.BatchesProcessed = 1
		total.add(batch)
		p.log.Debug("batch processed", "client", p.client, "batch", total.BatchesProcessed,
			"responses", batch.ProcessedResponses, "errors", batch.Errors)
	}
}

// ResetProcessed clears the processed stamp of every response in the
// endpoint family, sandbox rows included.
func (p *Pipeline) ResetProcessed(ctx context.Context) (int64, error) {
	return p.source.ResetProcessed(ctx, p.client, p.sel)
}

// ClearProcessedTables deletes every row of KeywordTable and resets the
// endpoint family for reprocessing.
func (p *Pipeline) ClearProcessedTables(ctx context.Context, withCount bool) (ClearStats, error) {
	stats := ClearStats{ItemsDeleted: -1}
	if withCount {
		if err := p.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+KeywordTable).Scan(&stats.ItemsDeleted); err != nil {
			return stats, fmt.Errorf("count items: %w", err)
		}
	}
	if _, err := p.db.Exec(ctx, "DELETE FROM "+KeywordTable); err != nil {
		return stats, fmt.Errorf("clear %s: %w", KeywordTable, err)
	}
	n, err := p.ResetProcessed(ctx)
	if err != nil {
		return stats, err
	}
	stats.ResponsesReset = n
	return stats, nil
}

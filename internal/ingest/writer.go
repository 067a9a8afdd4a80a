package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aceteam-ai/relaycache/internal/store"
)

// DefaultChunkSize is the number of rows written per statement batch.
const DefaultChunkSize = 100

var (
	// ErrUnknownColumn indicates an item key that is not a table column
	ErrUnknownColumn = errors.New("unknown column")

	// ErrMissingKey indicates an item without a keyword
	ErrMissingKey = errors.New("item has no keyword")

	// ErrInvalidTimestamp indicates a created_at or updated_at value that
	// is not a recognized timestamp
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrConcurrentWrite indicates another writer inserted the same natural
	// key inside this batch
	ErrConcurrentWrite = errors.New("concurrent write on natural key")
)

// WriteStats counts the outcome of a batch write.
type WriteStats struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Add accumulates o into s.
func (s *WriteStats) Add(o WriteStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Skipped += o.Skipped
}

// Total is the number of rows considered.
func (s WriteStats) Total() int { return s.Inserted + s.Updated + s.Skipped }

// WriterConfig holds configuration for the item writer.
type WriterConfig struct {
	// UpdateIfNewer enables the freshness-aware path; otherwise conflicts on
	// the natural key are ignored
	UpdateIfNewer bool

	// ChunkSize bounds rows per batch (default: 100)
	ChunkSize int

	Logger *slog.Logger
}

// Writer bulk-writes flattened items into KeywordTable.
type Writer struct {
	db            *store.DB
	updateIfNewer bool
	chunkSize     int
	log           *slog.Logger
}

// NewWriter creates a writer on db. The table is created by Migrate.
func NewWriter(db *store.DB, cfg WriterConfig) *Writer {
	w := &Writer{
		db:            db,
		updateIfNewer: cfg.UpdateIfNewer,
		chunkSize:     cfg.ChunkSize,
		log:           cfg.Logger,
	}
	if w.chunkSize <= 0 {
		w.chunkSize = DefaultChunkSize
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

// Migrate creates KeywordTable and its indexes.
func Migrate(ctx context.Context, db *store.DB) error {
	return db.ExecSchema(ctx, KeywordSchema()...)
}

// BatchInsertOrUpdate writes items in chunks. With UpdateIfNewer, an item
// whose natural key exists replaces the stored row only when its updated_at
// (or created_at) is strictly newer; otherwise it is skipped. Without it,
// existing keys are skipped.
func (w *Writer) BatchInsertOrUpdate(ctx context.Context, items []Item) (WriteStats, error) {
	var stats WriteStats
	rows := make([]Item, 0, len(items))
	for _, it := range items {
		row, err := normalizeRow(it)
		if err != nil {
			return stats, err
		}
		rows = append(rows, row)
	}

	for start := 0; start < len(rows); start += w.chunkSize {
		end := start + w.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		var (
			chunk WriteStats
			err   error
		)
		if w.updateIfNewer {
			chunk, err = w.writeFresh(ctx, rows[start:end])
		} else {
			chunk, err = w.writeFast(ctx, rows[start:end])
		}
		if err != nil {
			return stats, fmt.Errorf("write chunk at %d: %w", start, err)
		}
		stats.Add(chunk)
	}

	w.log.Debug("batch written", "table", KeywordTable, "inserted", stats.Inserted,
		"updated", stats.Updated, "skipped", stats.Skipped)
	return stats, nil
}

// writeFast inserts rows grouped by column set, ignoring natural key conflicts.
func (w *Writer) writeFast(ctx context.Context, rows []Item) (WriteStats, error) {
	var stats WriteStats
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	for _, group := range groupByColumns(rows) {
		cols := group.columns
		placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
		values := make([]string, len(group.rows))
		args := make([]any, 0, len(cols)*len(group.rows))
		for i, row := range group.rows {
			values[i] = placeholder
			for _, c := range cols {
				args = append(args, row[c])
			}
		}

		q := "INSERT INTO " + KeywordTable + " (" + strings.Join(cols, ", ") + ") VALUES " +
			strings.Join(values, ", ") +
			" ON CONFLICT (" + strings.Join(naturalKey, ", ") + ") DO NOTHING"
		res, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return stats, fmt.Errorf("insert items: %w", err)
		}
		n, _ := res.RowsAffected()
		stats.Inserted += int(n)
		stats.Skipped += len(group.rows) - int(n)
	}

	if err := tx.Commit(); err != nil {
		return WriteStats{}, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

type existingRow struct {
	id    int64
	stamp string
}

// writeFresh inserts new keys and updates existing ones only when newer.
func (w *Writer) writeFresh(ctx context.Context, rows []Item) (WriteStats, error) {
	var stats WriteStats
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	existing, err := w.loadExisting(ctx, tx, rows)
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		k := keyOf(row)
		incoming := stampOf(row)
		cur, found := existing[k]

		if !found {
			id, err := insertReturning(ctx, tx, row)
			if err != nil {
				return stats, err
			}
			existing[k] = existingRow{id: id, stamp: incoming}
			stats.Inserted++
			continue
		}

		if incoming == "" || incoming <= cur.stamp {
			stats.Skipped++
			continue
		}
		if err := updateRow(ctx, tx, cur.id, row); err != nil {
			return stats, err
		}
		existing[k] = existingRow{id: cur.id, stamp: incoming}
		stats.Updated++
	}

	if err := tx.Commit(); err != nil {
		return WriteStats{}, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

func (w *Writer) loadExisting(ctx context.Context, tx *store.Tx, rows []Item) (map[string]existingRow, error) {
	seen := make(map[string]bool)
	var keywords []any
	for _, row := range rows {
		kw := row["keyword"].(string)
		if !seen[kw] {
			seen[kw] = true
			keywords = append(keywords, kw)
		}
	}

	q := "SELECT id, keyword, location_code, language_code, created_at, updated_at FROM " + KeywordTable +
		" WHERE keyword IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(keywords)), ", ") + ")"
	res, err := tx.Query(ctx, q, keywords...)
	if err != nil {
		return nil, fmt.Errorf("load existing items: %w", err)
	}
	defer res.Close()

	out := make(map[string]existingRow)
	for res.Next() {
		var (
			id                   int64
			keyword, language    string
			location             int64
			createdAt, updatedAt string
		)
		if err := res.Scan(&id, &keyword, &location, &language, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan existing item: %w", err)
		}
		stamp := updatedAt
		if stamp == "" {
			stamp = createdAt
		}
		// rows written by other tools may use another layout
		if norm, err := normalizeStamp(stamp); err == nil {
			stamp = norm
		}
		out[naturalKeyString(keyword, location, language)] = existingRow{id: id, stamp: stamp}
	}
	return out, res.Err()
}

func insertReturning(ctx context.Context, tx *store.Tx, row Item) (int64, error) {
	cols := sortedColumns(row)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	q := "INSERT INTO " + KeywordTable + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ") RETURNING id"

	var id int64
	if err := tx.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		if store.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %v", ErrConcurrentWrite, row["keyword"])
		}
		return 0, fmt.Errorf("insert item: %w", err)
	}
	return id, nil
}

func updateRow(ctx context.Context, tx *store.Tx, id int64, row Item) error {
	var (
		sets []string
		args []any
	)
	for _, c := range sortedColumns(row) {
		if c == "created_at" || isNaturalKey(c) {
			continue
		}
		sets = append(sets, c+" = ?")
		args = append(args, row[c])
	}
	args = append(args, id)
	q := "UPDATE " + KeywordTable + " SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("update item id=%d: %w", id, err)
	}
	return nil
}

// normalizeRow validates column names and converts values to driver types.
func normalizeRow(it Item) (Item, error) {
	kw, ok := it["keyword"].(string)
	if !ok || kw == "" {
		return nil, ErrMissingKey
	}
	out := make(Item, len(it))
	for col, v := range it {
		if _, ok := keywordColumnSet[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
		}
		if v == nil && isNaturalKey(col) {
			continue
		}
		val, err := dbValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		if str, ok := val.(string); ok && isStampColumn(col) {
			if str == "" {
				continue
			}
			if val, err = normalizeStamp(str); err != nil {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}
		}
		out[col] = val
	}
	now := store.FormatTime(time.Now())
	if _, ok := out["created_at"]; !ok {
		if u, ok := out["updated_at"]; ok && u != nil {
			out["created_at"] = u
		} else {
			out["created_at"] = now
		}
	}
	if u, ok := out["updated_at"]; !ok || u == nil {
		out["updated_at"] = out["created_at"]
	}
	return out, nil
}

func dbValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, int64, float64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return store.FormatTime(t), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return store.FormatTime(*t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

type columnGroup struct {
	columns []string
	rows    []Item
}

func groupByColumns(rows []Item) []columnGroup {
	var groups []columnGroup
	index := make(map[string]int)
	for _, row := range rows {
		cols := sortedColumns(row)
		sig := strings.Join(cols, ",")
		i, ok := index[sig]
		if !ok {
			i = len(groups)
			index[sig] = i
			groups = append(groups, columnGroup{columns: cols})
		}
		groups[i].rows = append(groups[i].rows, row)
	}
	return groups
}

func sortedColumns(row Item) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func isNaturalKey(col string) bool {
	for _, k := range naturalKey {
		if k == col {
			return true
		}
	}
	return false
}

func keyOf(row Item) string {
	var location int64
	if v, ok := row["location_code"].(int64); ok {
		location = v
	}
	language, _ := row["language_code"].(string)
	return naturalKeyString(row["keyword"].(string), location, language)
}

func naturalKeyString(keyword string, location int64, language string) string {
	return fmt.Sprintf("%s\x00%d\x00%s", keyword, location, language)
}

// stampLayouts are the accepted created_at/updated_at forms. Layouts without
// a zone are read as UTC.
var stampLayouts = []string{
	store.TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func isStampColumn(col string) bool {
	return col == "created_at" || col == "updated_at"
}

// normalizeStamp rewrites s in store.TimeLayout so stamps compare as strings.
func normalizeStamp(s string) (string, error) {
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return store.FormatTime(t), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

func stampOf(row Item) string {
	if s, ok := row["updated_at"].(string); ok && s != "" {
		return s
	}
	s, _ := row["created_at"].(string)
	return s
}

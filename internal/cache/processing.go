package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aceteam-ai/relaycache/internal/store"
)

// Selector narrows the rows handed to an ingestion pipeline.
type Selector struct {
	// Endpoints are SQL LIKE patterns; a row matches if any pattern matches.
	// Empty matches every endpoint.
	Endpoints []string

	// ExcludeBaseURL skips rows whose base_url contains this marker.
	ExcludeBaseURL string
}

func (sel Selector) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(sel.Endpoints) > 0 {
		ors := make([]string, len(sel.Endpoints))
		for i, p := range sel.Endpoints {
			ors[i] = "endpoint LIKE ?"
			args = append(args, p)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if sel.ExcludeBaseURL != "" {
		clauses = append(clauses, "base_url NOT LIKE ?")
		args = append(args, "%"+sel.ExcludeBaseURL+"%")
	}
	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// Unprocessed returns up to limit rows with processed_at unset, oldest first.
// A limit of zero or less returns every matching row.
func (s *SQLStore) Unprocessed(ctx context.Context, client string, sel Selector, limit int) ([]*CachedResponse, error) {
	table, err := s.EnsureTable(ctx, client)
	if err != nil {
		return nil, err
	}

	where, args := sel.where()
	q := "SELECT " + responseColumns + " FROM " + table +
		" WHERE processed_at IS NULL AND " + where + " ORDER BY id ASC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed: %w", err)
	}
	defer rows.Close()

	var out []*CachedResponse
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountUnprocessed counts rows Unprocessed would return without a limit.
func (s *SQLStore) CountUnprocessed(ctx context.Context, client string, sel Selector) (int, error) {
	table, err := s.EnsureTable(ctx, client)
	if err != nil {
		return 0, err
	}
	where, args := sel.where()
	var n int
	err = s.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+" WHERE processed_at IS NULL AND "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed: %w", err)
	}
	return n, nil
}

// MarkProcessed stamps processed_at and processed_status for one row.
func (s *SQLStore) MarkProcessed(ctx context.Context, client string, id int64, status string, at time.Time) error {
	table, err := s.EnsureTable(ctx, client)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, "UPDATE "+table+" SET processed_at = ?, processed_status = ? WHERE id = ?",
		store.FormatTime(at), nullString(status), id)
	if err != nil {
		return fmt.Errorf("mark processed id=%d: %w", id, err)
	}
	return nil
}

// ResetProcessed clears processed_at and processed_status on every row the
// selector matches and returns the number of rows touched. The base URL
// exclusion is ignored so sandbox rows are reset too.
func (s *SQLStore) ResetProcessed(ctx context.Context, client string, sel Selector) (int64, error) {
	table, err := s.EnsureTable(ctx, client)
	if err != nil {
		return 0, err
	}
	sel.ExcludeBaseURL = ""
	where, args := sel.where()
	res, err := s.db.Exec(ctx, "UPDATE "+table+" SET processed_at = NULL, processed_status = NULL WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

package errorlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aceteam-ai/relaycache/internal/store"
)

// Record is a stored api_errors row.
type Record struct {
	ID              string
	Client          string
	Type            string
	Level           string
	Message         string
	APIMessage      string
	ResponsePreview string
	ContextData     string
	CreatedAt       time.Time
}

// Recent returns the newest entries, optionally filtered by client.
func (l *Logger) Recent(ctx context.Context, client string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, api_client, error_type, log_level, error_message,
	             api_message, response_preview, context_data, created_at
	      FROM api_errors`
	var args []any
	if client != "" {
		q += " WHERE api_client = ?"
		args = append(args, client)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query api errors: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                                Record
			apiMessage, preview, contextData sql.NullString
			createdAt                        string
		)
		if err := rows.Scan(&r.ID, &r.Client, &r.Type, &r.Level, &r.Message,
			&apiMessage, &preview, &contextData, &createdAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.APIMessage = apiMessage.String
		r.ResponsePreview = preview.String
		r.ContextData = contextData.String
		if t, err := store.ParseTime(createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

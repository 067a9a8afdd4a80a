package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a transaction that rebinds "?" queries like DB does.
type Tx struct {
	*sql.Tx
	Dialect Dialect
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{Tx: tx, Dialect: db.Dialect}, nil
}

// Exec runs a "?" statement after rebinding.
func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.ExecContext(ctx, tx.Dialect.Rebind(query), args...)
}

// Query runs a "?" query after rebinding.
func (tx *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.QueryContext(ctx, tx.Dialect.Rebind(query), args...)
}

// QueryRow runs a "?" query after rebinding.
func (tx *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.QueryRowContext(ctx, tx.Dialect.Rebind(query), args...)
}

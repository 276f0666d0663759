// Package dbexec provides database query execution abstractions: a direct
// executor over *sql.DB and a recording wrapper that counts round trips.
package dbexec

import (
	"context"
	"database/sql"
	"sync"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution so callers can swap in recording or test executors.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// Statement is one recorded query.
type Statement struct {
	SQL  string
	Args []any
}

// RecordingExecutor records every query before delegating it.
type RecordingExecutor struct {
	next QueryExecutor

	mu         sync.Mutex
	statements []Statement
}

// NewRecordingExecutor wraps next.
func NewRecordingExecutor(next QueryExecutor) *RecordingExecutor {
	return &RecordingExecutor{next: next}
}

func (e *RecordingExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	e.record(query, args)
	return e.next.QueryContext(ctx, query, args...)
}

// ExecContext delegates without recording; only reads are counted.
func (e *RecordingExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return e.next.ExecContext(ctx, query, args...)
}

func (e *RecordingExecutor) record(query string, args []any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = append(e.statements, Statement{SQL: query, Args: append([]any(nil), args...)})
}

// Statements returns the queries recorded so far.
func (e *RecordingExecutor) Statements() []Statement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Statement(nil), e.statements...)
}

// Count returns the number of recorded queries.
func (e *RecordingExecutor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.statements)
}

// Reset forgets recorded queries.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = nil
}

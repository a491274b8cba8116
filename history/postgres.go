//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoTez.
//
// GoTez is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoTez is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoTez. If not, see https://www.gnu.org/licenses/.

package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// PostgresRecorderError wraps PostgreSQL failures with the operation that hit them.
type PostgresRecorderError struct {
	Op  string // The operation being performed (e.g., "connect", "insert")
	Err error  // The underlying error
}

func (e *PostgresRecorderError) Error() string {
	return fmt.Sprintf("postgres recorder %s: %v", e.Op, e.Err)
}

func (e *PostgresRecorderError) Unwrap() error {
	return e.Err
}

// PostgresRecorderOptions configures the PostgreSQL recorder.
type PostgresRecorderOptions struct {
	DSN             string        // PostgreSQL connection string
	TableName       string        // Target table name
	CreateTable     bool          // Create table if not exists
	MaxOpenConns    int           // Max open connections
	MaxIdleConns    int           // Max idle connections
	ConnMaxLifetime time.Duration // Max connection lifetime
	QueryTimeout    time.Duration // Timeout for each statement
}

// PostgresRecorderOption represents a configuration function for PostgresRecorderOptions.
type PostgresRecorderOption func(*PostgresRecorderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresRecorderOption {
	return func(opts *PostgresRecorderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresTable sets the events table name.
func WithPostgresTable(table string) PostgresRecorderOption {
	return func(opts *PostgresRecorderOptions) {
		opts.TableName = table
	}
}

// WithPostgresCreateTable enables table creation on startup.
func WithPostgresCreateTable(create bool) PostgresRecorderOption {
	return func(opts *PostgresRecorderOptions) {
		opts.CreateTable = create
	}
}

// WithPostgresQueryTimeout bounds each statement.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresRecorderOption {
	return func(opts *PostgresRecorderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresPool sets connection pool limits.
func WithPostgresPool(maxOpen, maxIdle int, lifetime time.Duration) PostgresRecorderOption {
	return func(opts *PostgresRecorderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = lifetime
	}
}

// PostgresRecorder stores events as rows of a PostgreSQL table.
type PostgresRecorder struct {
	db         *sql.DB
	opts       PostgresRecorderOptions
	insertStmt string
	mu         sync.Mutex
	closed     bool
}

// NewPostgresRecorder connects to PostgreSQL and prepares the events table.
func NewPostgresRecorder(ctx context.Context, options ...PostgresRecorderOption) (*PostgresRecorder, error) {
	opts := PostgresRecorderOptions{
		TableName:       "gotez_events",
		CreateTable:     true,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.DSN == "" {
		return nil, &PostgresRecorderError{Op: "validate_options", Err: fmt.Errorf("dsn is required")}
	}
	if opts.TableName == "" {
		return nil, &PostgresRecorderError{Op: "validate_options", Err: fmt.Errorf("table name is required")}
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &PostgresRecorderError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &PostgresRecorderError{Op: "connect", Err: err}
	}

	r := &PostgresRecorder{db: db, opts: opts, insertStmt: insertStatement(opts.TableName)}
	if opts.CreateTable {
		if err := r.createTable(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return r, nil
}

func createTableStatement(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	event_time TIMESTAMPTZ NOT NULL,
	event_type TEXT NOT NULL,
	session TEXT NOT NULL,
	session_id TEXT NOT NULL,
	application_id TEXT,
	dag_name TEXT,
	dag_id TEXT,
	state TEXT,
	total_tasks INTEGER,
	succeeded_tasks INTEGER,
	running_tasks INTEGER,
	failed_tasks INTEGER,
	killed_tasks INTEGER,
	diagnostics TEXT[]
)`, pq.QuoteIdentifier(table))
}

func insertStatement(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (event_time, event_type, session, session_id, application_id,
	dag_name, dag_id, state, total_tasks, succeeded_tasks, running_tasks, failed_tasks, killed_tasks, diagnostics)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, pq.QuoteIdentifier(table))
}

func (r *PostgresRecorder) createTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()
	if _, err := r.db.ExecContext(ctx, createTableStatement(r.opts.TableName)); err != nil {
		return &PostgresRecorderError{Op: "create_table", Err: err}
	}
	return nil
}

// Record inserts one event row.
func (r *PostgresRecorder) Record(ctx context.Context, ev Event) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return &PostgresRecorderError{Op: "insert", Err: fmt.Errorf("recorder closed")}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, r.insertStmt,
		ev.Time.UTC(), string(ev.Type), ev.Session, ev.SessionID, ev.ApplicationID,
		ev.DAGName, ev.DAGID, ev.State,
		ev.Progress.Total, ev.Progress.Succeeded, ev.Progress.Running, ev.Progress.Failed, ev.Progress.Killed,
		pq.Array(ev.Diagnostics))
	if err != nil {
		return &PostgresRecorderError{Op: "insert", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.db.Close(); err != nil {
		return &PostgresRecorderError{Op: "close", Err: err}
	}
	return nil
}

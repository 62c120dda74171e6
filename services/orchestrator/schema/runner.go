// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datalia/sqlchat/services/orchestrator/execctx"
)

// ErrNotReadOnly rejects statements that are not plain SELECTs. The runner
// only ever reads; mutations belong to whatever loads the warehouse.
var ErrNotReadOnly = errors.New("only SELECT statements can be executed")

// maxRunnerRows caps how much of a result set is materialized per query.
const maxRunnerRows = 1000

// Result is an executed query's materialized output.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// Runner executes read-only SQL on behalf of an agent tool call. It lives
// several layers below the turn orchestrator, so it attributes work to the
// owning session through the ambient execution context rather than through
// an explicit session argument.
type Runner struct {
	db *sql.DB
}

// NewRunner wraps an open database handle.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// Run executes query and materializes up to maxRunnerRows rows. The owning
// session, when one is bound to ctx, gets its query counter bumped whether
// or not the query succeeds.
func (r *Runner) Run(ctx context.Context, query string) (*Result, error) {
	if session := execctx.SessionFrom(ctx); session != nil {
		session.IncrementQueryCount()
	}

	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, ErrNotReadOnly
	}

	rows, err := r.db.QueryContext(ctx, trimmed)
	if err != nil {
		slog.Error("query execution failed",
			"request_id", execctx.RequestIDFrom(ctx), "error", err)
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		if len(result.Rows) == maxRunnerRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package schema introspects the target database and feeds compact
// table/column summaries into the agent's system prompt.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// Caps keep the prompt contribution bounded on wide schemas.
const (
	maxTables         = 20
	maxColumnsPerLine = 6
)

// Provider supplies a read-only snapshot of the database schema.
type Provider interface {
	Summary(ctx context.Context) (string, error)
}

// Table is one introspected table.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// SQLProvider introspects a SQLite database through database/sql.
type SQLProvider struct {
	db    *sql.DB
	cache *Cache
}

// NewSQLProvider wraps an open database handle. cache may be nil to disable
// file caching.
func NewSQLProvider(db *sql.DB, cache *Cache) *SQLProvider {
	return &SQLProvider{db: db, cache: cache}
}

// Summary returns "table(col, col, ...)" lines, one table per line. The
// snapshot is served from the file cache when present; introspection failures
// degrade to a placeholder line rather than failing the turn.
func (p *SQLProvider) Summary(ctx context.Context) (string, error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get("schema_summary"); ok {
			return cached, nil
		}
	}

	tables, err := p.introspect(ctx)
	if err != nil {
		slog.Error("schema introspection failed", "error", err)
		return "(nao foi possivel ler o esquema do banco)", nil
	}

	summary := renderSummary(tables)
	if p.cache != nil {
		if err := p.cache.Set("schema_summary", summary); err != nil {
			slog.Warn("failed to persist schema cache", "error", err)
		}
	}
	return summary, nil
}

func (p *SQLProvider) introspect(ctx context.Context) ([]Table, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(names) > maxTables {
		names = names[:maxTables]
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols, err := p.columns(ctx, name)
		if err != nil {
			// A single unreadable table should not sink the snapshot.
			slog.Warn("could not read columns", "table", name, "error", err)
			tables = append(tables, Table{Name: name})
			continue
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return tables, nil
}

func (p *SQLProvider) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func renderSummary(tables []Table) string {
	var lines []string
	for _, t := range tables {
		if len(t.Columns) == 0 {
			lines = append(lines, t.Name)
			continue
		}
		cols := t.Columns
		suffix := ""
		if len(cols) > maxColumnsPerLine {
			cols = cols[:maxColumnsPerLine]
			suffix = "..."
		}
		lines = append(lines, fmt.Sprintf("%s(%s%s)", t.Name, strings.Join(cols, ", "), suffix))
	}
	return strings.Join(lines, "\n")
}

// StaticProvider serves a fixed summary. Used in tests and in deployments
// where the schema is maintained by hand.
type StaticProvider struct {
	Text string
}

func (p StaticProvider) Summary(context.Context) (string, error) {
	return p.Text, nil
}

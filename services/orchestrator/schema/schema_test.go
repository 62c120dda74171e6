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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
	"github.com/datalia/sqlchat/services/orchestrator/execctx"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE vendas (id INTEGER PRIMARY KEY, produto TEXT, valor REAL, data TEXT);
		CREATE TABLE clientes (id INTEGER PRIMARY KEY, nome TEXT, cidade TEXT);
		INSERT INTO vendas (produto, valor, data) VALUES
			('caneta', 2.5, '2025-01-10'),
			('caderno', 14.9, '2025-01-11');
	`)
	require.NoError(t, err)
	return db
}

func TestSQLProvider_Summary(t *testing.T) {
	db := openTestDB(t)
	p := NewSQLProvider(db, nil)

	summary, err := p.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t,
		"clientes(id, nome, cidade)\nvendas(id, produto, valor, data)",
		summary)
}

func TestSQLProvider_SummaryUsesCache(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(filepath.Join(t.TempDir(), "schema.json"), time.Hour)
	p := NewSQLProvider(db, cache)

	first, err := p.Summary(context.Background())
	require.NoError(t, err)

	// Schema changes are invisible until the cache is invalidated.
	_, err = db.Exec(`CREATE TABLE novos (id INTEGER)`)
	require.NoError(t, err)

	second, err := p.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cache.Invalidate("schema_summary")
	third, err := p.Summary(context.Background())
	require.NoError(t, err)
	assert.Contains(t, third, "novos(id)")
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "schema.json"), time.Nanosecond)
	require.NoError(t, cache.Set("k", "v"))
	time.Sleep(time.Millisecond)

	_, ok := cache.Get("k")
	assert.False(t, ok)
}

func TestRunner_Run(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	result, err := r.Run(context.Background(), "SELECT produto, valor FROM vendas ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, []string{"produto", "valor"}, result.Columns)
	assert.Len(t, result.Rows, 2)
	assert.False(t, result.Truncated)
}

func TestRunner_RejectsNonSelect(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	_, err := r.Run(context.Background(), "DELETE FROM vendas")
	assert.ErrorIs(t, err, ErrNotReadOnly)
}

func TestRunner_AttributesQueryToBoundSession(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	session := datatypes.NewSession(datatypes.SessionID("s-1"))
	ctx := execctx.Bind(context.Background(), execctx.Context{
		Session:   session,
		RequestID: "req-1",
	})

	_, err := r.Run(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 1, session.Stats().QueryCount)

	// Failed executions still count as attempts.
	_, err = r.Run(ctx, "SELECT nope FROM missing")
	require.Error(t, err)
	assert.Equal(t, 2, session.Stats().QueryCount)
}

// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	t.Run("accepts non-empty id", func(t *testing.T) {
		id, err := NewSessionID("sess-123")
		require.NoError(t, err)
		assert.Equal(t, "sess-123", id.String())
	})

	t.Run("rejects empty id", func(t *testing.T) {
		_, err := NewSessionID("")
		assert.ErrorIs(t, err, ErrEmptySessionID)
	})

	t.Run("rejects whitespace-only id", func(t *testing.T) {
		_, err := NewSessionID("   \t ")
		assert.ErrorIs(t, err, ErrEmptySessionID)
	})
}

func TestSession_AddMessage(t *testing.T) {
	s := NewSession("sess-1")
	before := s.LastActivity()

	time.Sleep(time.Millisecond)
	s.AddMessage(NewMessage(RoleUser, "quantos clientes existem?"))
	s.AddMessage(NewMessage(RoleAssistant, "Existem 42 clientes."))

	history := s.MessageHistory()
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.Equal(t, 2, s.Stats().MessageCount)
	assert.True(t, s.LastActivity().After(before))
	assert.True(t, s.LastActivity().After(s.CreatedAt()) || s.LastActivity().Equal(s.CreatedAt()))

	// History is a copy: mutating it must not touch the session.
	history[0].Content = "mutated"
	assert.Equal(t, "quantos clientes existem?", s.MessageHistory()[0].Content)
}

func TestSession_AddQueryResult(t *testing.T) {
	t.Run("empty result never becomes active dataset", func(t *testing.T) {
		s := NewSession("sess-1")
		s.AddQueryResult(QueryResult{Query: "SELECT 1", RowCount: 0, QueryType: QueryTypeSelect})
		assert.Nil(t, s.ActiveDataset())
	})

	t.Run("non-empty result always becomes active dataset", func(t *testing.T) {
		s := NewSession("sess-1")
		s.AddQueryResult(QueryResult{Query: "SELECT a FROM t", RowCount: 3, QueryType: QueryTypeSelect})
		s.AddQueryResult(QueryResult{Query: "SELECT b FROM u", RowCount: 7, QueryType: QueryTypeSelect})
		s.AddQueryResult(QueryResult{Query: "SELECT c FROM v", RowCount: 0, QueryType: QueryTypeSelect})

		ds := s.ActiveDataset()
		require.NotNil(t, ds)
		assert.Equal(t, "SELECT b FROM u", ds.Query)
		assert.Equal(t, 7, ds.RowCount)
	})

	t.Run("ring buffer evicts oldest past capacity", func(t *testing.T) {
		s := NewSession("sess-1")
		for i := 0; i < 9; i++ {
			s.AddQueryResult(QueryResult{Query: fmt.Sprintf("SELECT %d", i), RowCount: 1})
		}
		results := s.RecentQueryResults()
		require.Len(t, results, 5)
		assert.Equal(t, "SELECT 4", results[0].Query)
		assert.Equal(t, "SELECT 8", results[4].Query)
	})
}

func TestSession_SyncStats(t *testing.T) {
	s := NewSession("sess-1")
	for i := 0; i < 7; i++ {
		s.IncrementQueryCount()
	}

	// Client is ahead: server adopts the larger count.
	stats := s.SyncStats(0, 10)
	assert.Equal(t, 10, stats.QueryCount)

	// Client is behind: server keeps its own count.
	stats = s.SyncStats(0, 3)
	assert.Equal(t, 10, stats.QueryCount)
}

func TestSession_IsExpired(t *testing.T) {
	s := NewSession("sess-1")
	assert.False(t, s.IsExpired(time.Hour))

	s.lastActivity = time.Now().Add(-61 * time.Second)
	assert.True(t, s.IsExpired(60*time.Second))
}

func TestSession_ContextSummary(t *testing.T) {
	t.Run("empty session yields empty summary", func(t *testing.T) {
		assert.Empty(t, NewSession("sess-1").ContextSummary())
	})

	t.Run("renders tail and active dataset", func(t *testing.T) {
		s := NewSession("sess-1")
		for i := 0; i < 8; i++ {
			s.AddMessage(NewMessage(RoleUser, fmt.Sprintf("pergunta %d", i)))
		}
		s.AddQueryResult(QueryResult{
			Query:    "SELECT nome, idade FROM clientes",
			RowCount: 42,
			Columns:  []string{"nome", "idade", "cidade", "estado", "cep", "pais"},
		})

		summary := s.ContextSummary()
		// Only the last 6 messages appear.
		assert.NotContains(t, summary, "pergunta 1")
		assert.Contains(t, summary, "pergunta 7")
		assert.Contains(t, summary, "DATASET ATIVO: 42 registros")
		// Column preview caps at five names.
		assert.Contains(t, summary, "cep...")
		assert.NotContains(t, summary, "pais")
	})

	t.Run("truncates long message content", func(t *testing.T) {
		s := NewSession("sess-1")
		s.AddMessage(NewMessage(RoleUser, strings.Repeat("x", 300)))
		assert.Contains(t, s.ContextSummary(), strings.Repeat("x", 200)+"...")
	})
}

// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrEmptySessionID is returned when a session id is empty or whitespace-only.
var ErrEmptySessionID = errors.New("session id cannot be empty")

// maxRecentResults bounds the per-session query result ring buffer.
const maxRecentResults = 5

// contextWindow is how many trailing messages ContextSummary renders.
const contextWindow = 6

// SessionID is an opaque, non-empty session identifier.
type SessionID string

// NewSessionID validates and wraps a raw identifier.
func NewSessionID(raw string) (SessionID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptySessionID
	}
	return SessionID(raw), nil
}

func (id SessionID) String() string { return string(id) }

// SessionStats tracks counters that the frontend mirrors and periodically
// syncs back. QueryCount only ever grows (monotonic merge on sync).
type SessionStats struct {
	MessageCount int       `json:"message_count"`
	QueryCount   int       `json:"query_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is the aggregate root for one conversation. All mutation goes
// through its methods; each method takes the session mutex so two concurrent
// turns against the same id cannot interleave a single append.
type Session struct {
	mu sync.Mutex

	id            SessionID
	createdAt     time.Time
	lastActivity  time.Time
	history       []Message
	recentResults []QueryResult
	activeDataset *QueryResult
	stats         SessionStats
}

// NewSession creates an empty session with zeroed stats.
func NewSession(id SessionID) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		createdAt:    now,
		lastActivity: now,
		stats:        SessionStats{UpdatedAt: now},
	}
}

func (s *Session) ID() SessionID { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// MessageHistory returns a copy; callers cannot mutate the session through it.
func (s *Session) MessageHistory() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// ActiveDataset returns the most recent non-empty query result, or nil.
func (s *Session) ActiveDataset() *QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeDataset == nil {
		return nil
	}
	cp := *s.activeDataset
	return &cp
}

// RecentQueryResults returns a copy of the ring buffer, oldest first.
func (s *Session) RecentQueryResults() []QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueryResult, len(s.recentResults))
	copy(out, s.recentResults)
	return out
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// AddMessage appends to the history and bumps activity.
func (s *Session) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
	s.stats.MessageCount = len(s.history)
	s.touchLocked()
}

// AddQueryResult records a result in the ring buffer (capacity 5, oldest
// evicted) and promotes it to the active dataset when it has rows.
func (s *Session) AddQueryResult(result QueryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentResults = append(s.recentResults, result)
	if len(s.recentResults) > maxRecentResults {
		s.recentResults = s.recentResults[1:]
	}
	if result.RowCount > 0 {
		cp := result
		s.activeDataset = &cp
	}
	s.touchLocked()
}

// IncrementQueryCount is called by the data access layer each time a
// generated SELECT actually executes.
func (s *Session) IncrementQueryCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.QueryCount++
	s.touchLocked()
}

// SyncStats reconciles a client-side view of the counters with server state.
// The query count merges monotonically: the server keeps the maximum of the
// two values, so a stale client can never roll it back.
func (s *Session) SyncStats(messageCount, queryCount int) SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if queryCount > s.stats.QueryCount {
		s.stats.QueryCount = queryCount
	}
	if messageCount > s.stats.MessageCount {
		s.stats.MessageCount = messageCount
	}
	s.touchLocked()
	return s.stats
}

// IsExpired reports whether the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) > timeout
}

// ContextSummary renders the conversation tail plus the active dataset for
// injection into an enhanced query. Output is user-facing Portuguese, matching
// the language the agent answers in.
func (s *Session) ContextSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return ""
	}

	recent := s.history
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}

	var parts []string
	for _, msg := range recent {
		content := msg.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", msg.Role, content))
	}

	if s.activeDataset != nil {
		cols := s.activeDataset.Columns
		preview := strings.Join(truncateList(cols, 5), ", ")
		if len(cols) > 5 {
			preview += "..."
		}
		parts = append(parts, fmt.Sprintf(
			"\nDATASET ATIVO: %d registros, colunas: %s",
			s.activeDataset.RowCount, preview))
	}

	return strings.Join(parts, "\n")
}

// touchLocked bumps lastActivity and the stats timestamp. Caller holds mu.
func (s *Session) touchLocked() {
	now := time.Now()
	s.lastActivity = now
	s.stats.UpdatedAt = now
}

func truncateList(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

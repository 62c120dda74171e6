// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store holds session aggregates in memory.
//
// The store lock covers map operations only. Business-level mutation of a
// Session happens through the session's own methods; two goroutines holding
// the same *Session serialize on the session mutex, not on the store lock.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
)

// DefaultSessionTimeout is how long a session may stay idle before the store
// treats it as gone.
const DefaultSessionTimeout = time.Hour

// SessionStore is the port the use cases depend on.
type SessionStore interface {
	Create() *datatypes.Session
	Get(id datatypes.SessionID) (*datatypes.Session, bool)
	Save(session *datatypes.Session) error
	Delete(id datatypes.SessionID)
	ListExpired(timeout time.Duration) []datatypes.SessionID
	Sweep(timeout time.Duration) int
}

// MemoryStore is the in-process SessionStore implementation.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[datatypes.SessionID]*datatypes.Session
	timeout  time.Duration
}

// NewMemoryStore creates a store with the given idle timeout. A zero timeout
// falls back to DefaultSessionTimeout.
func NewMemoryStore(timeout time.Duration) *MemoryStore {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &MemoryStore{
		sessions: make(map[datatypes.SessionID]*datatypes.Session),
		timeout:  timeout,
	}
}

// Create registers a fresh session under a new uuid.
func (m *MemoryStore) Create() *datatypes.Session {
	id := datatypes.SessionID(uuid.NewString())
	session := datatypes.NewSession(id)

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	slog.Info("created session", "session_id", id)
	return session
}

// Get returns the live session for id. A session idle past the store timeout
// is evicted here and reported absent, so expiry does not depend on the
// background sweep having run.
func (m *MemoryStore) Get(id datatypes.SessionID) (*datatypes.Session, bool) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	if session.IsExpired(m.timeout) {
		m.Delete(id)
		slog.Info("evicted expired session on read", "session_id", id)
		return nil, false
	}
	return session, true
}

// Save stores the session under its own id. The in-memory implementation
// cannot fail; the error is for stores backed by real persistence.
func (m *MemoryStore) Save(session *datatypes.Session) error {
	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()
	return nil
}

// Delete removes the session if present.
func (m *MemoryStore) Delete(id datatypes.SessionID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// ListExpired returns the ids of every session idle longer than timeout.
func (m *MemoryStore) ListExpired(timeout time.Duration) []datatypes.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []datatypes.SessionID
	for id, session := range m.sessions {
		if session.IsExpired(timeout) {
			expired = append(expired, id)
		}
	}
	return expired
}

// Sweep deletes every expired session and returns how many were removed.
func (m *MemoryStore) Sweep(timeout time.Duration) int {
	expired := m.ListExpired(timeout)
	for _, id := range expired {
		m.Delete(id)
	}
	if len(expired) > 0 {
		slog.Info("swept expired sessions", "count", len(expired))
	}
	return len(expired)
}

// Timeout exposes the configured idle timeout.
func (m *MemoryStore) Timeout() time.Duration { return m.timeout }

// Len reports how many sessions are currently held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

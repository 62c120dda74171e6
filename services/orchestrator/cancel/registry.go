// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cancel implements cooperative cancellation for in-flight turns.
//
// Cancellation is a latch, not an interrupt. The cancel endpoint sets the
// latch for a request id; the owning turn observes it at its next checkpoint
// and returns a cancelled result. An attached context.CancelFunc is fired as
// a best-effort accelerator, but the latch is the source of truth: a turn
// whose context somehow survives still stops at the next checkpoint.
package cancel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/datalia/sqlchat/services/orchestrator/execctx"
)

// entry tracks one request id. Entries are created lazily by whichever of
// Register or RequestCancel arrives first, so a cancel that races ahead of
// registration is not lost.
type entry struct {
	cancelled bool
	cancel    context.CancelFunc
}

// Registry maps live request ids to their cancellation state. It is an
// injectable object owned by the server, not ambient global state.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register attaches a cancel func to the entry for id. If the latch was
// already set by an earlier RequestCancel, the func fires immediately.
func (r *Registry) Register(id string, cancel context.CancelFunc) {
	if id == "" {
		return
	}
	r.mu.Lock()
	e := r.entryLocked(id)
	e.cancel = cancel
	alreadyCancelled := e.cancelled
	r.mu.Unlock()

	if alreadyCancelled && cancel != nil {
		slog.Info("request was cancelled before registration, stopping now", "request_id", id)
		cancel()
	}
}

// Unregister drops the entry once the turn completes, success or failure.
// Without this the map grows without bound.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// RequestCancel sets the latch for id and fires the attached cancel func if
// one is registered. Idempotent; safe for ids that already completed or
// never existed (the latch is kept for a late registration to observe).
func (r *Registry) RequestCancel(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	e := r.entryLocked(id)
	e.cancelled = true
	cancel := e.cancel
	r.mu.Unlock()

	slog.Info("cancellation requested", "request_id", id)
	if cancel != nil {
		cancel()
	}
}

// IsCancelled reports whether the latch for id is set.
func (r *Registry) IsCancelled(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return ok && e.cancelled
}

// IsCancelledCtx answers for whichever request id is bound to ctx. This lets
// tool code several layers below the turn orchestrator checkpoint without
// being handed the id explicitly.
func (r *Registry) IsCancelledCtx(ctx context.Context) bool {
	return r.IsCancelled(execctx.RequestIDFrom(ctx))
}

// Len reports how many entries are live. Used by tests and the status page.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// entryLocked finds or lazily creates the entry for id. Caller holds mu.
func (r *Registry) entryLocked(id string) *entry {
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	return e
}

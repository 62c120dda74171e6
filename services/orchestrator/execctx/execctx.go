// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package execctx carries the (session, request id) pair for one turn across
// whichever execution domain runs the external agent.
//
// Two bindings exist for the same logical record. The cooperative binding is
// attached to the request's own context and flows automatically through the
// call tree. The worker binding is attached explicitly to the detached
// context handed to a worker goroutine, whose lifetime the caller controls:
// the binding dies with the worker call, so a reused goroutine can never
// observe a stale record.
//
// From reads the cooperative binding first and falls back to the worker
// binding. That ordering lets the same downstream code (cancellation checks,
// the query-count hook in the data access layer) work in both domains without
// knowing which one is active.
package execctx

import (
	"context"

	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
)

// Context is the execution record for one in-flight turn.
type Context struct {
	Session   *datatypes.Session
	RequestID string
}

type ctxKey int

const (
	cooperativeKey ctxKey = iota
	workerKey
)

// Bind attaches the record to the cooperative domain. The binding is scoped
// to the returned context; concurrent turns each derive their own and cannot
// clobber one another.
func Bind(ctx context.Context, ec Context) context.Context {
	return context.WithValue(ctx, cooperativeKey, ec)
}

// BindWorker attaches the record to the worker domain. Callers build the
// worker context from scratch (not from the request context) so the worker
// sees exactly what was copied in and nothing else.
func BindWorker(ctx context.Context, ec Context) context.Context {
	return context.WithValue(ctx, workerKey, ec)
}

// From returns the record for the current execution domain: cooperative
// binding first, worker binding as fallback.
func From(ctx context.Context) (Context, bool) {
	if ec, ok := ctx.Value(cooperativeKey).(Context); ok {
		return ec, true
	}
	if ec, ok := ctx.Value(workerKey).(Context); ok {
		return ec, true
	}
	return Context{}, false
}

// SessionFrom returns just the bound session, or nil when unbound.
func SessionFrom(ctx context.Context) *datatypes.Session {
	ec, ok := From(ctx)
	if !ok {
		return nil
	}
	return ec.Session
}

// RequestIDFrom returns just the bound request id, or "" when unbound.
func RequestIDFrom(ctx context.Context) string {
	ec, ok := From(ctx)
	if !ok {
		return ""
	}
	return ec.RequestID
}

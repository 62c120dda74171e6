// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cancel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalia/sqlchat/services/orchestrator/execctx"
)

func TestRegistry_CancelAfterRegister(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.Register("req-1", cancel)

	require.False(t, r.IsCancelled("req-1"))
	r.RequestCancel("req-1")

	assert.True(t, r.IsCancelled("req-1"))
	select {
	case <-ctx.Done():
	default:
		t.Fatal("attached cancel func was not fired")
	}
}

func TestRegistry_CancelBeforeRegisterIsNotLost(t *testing.T) {
	r := NewRegistry()

	// Cancel races ahead of registration: the latch must stick.
	r.RequestCancel("req-1")
	require.True(t, r.IsCancelled("req-1"))

	// The late registration must observe the latch immediately.
	ctx, cancel := context.WithCancel(context.Background())
	r.Register("req-1", cancel)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("late registration did not observe the pre-set latch")
	}
}

func TestRegistry_CancelUnknownIDIsSafe(t *testing.T) {
	r := NewRegistry()
	r.RequestCancel("never-registered")
	r.RequestCancel("never-registered")
	assert.True(t, r.IsCancelled("never-registered"))
}

func TestRegistry_UnregisterDropsEntry(t *testing.T) {
	r := NewRegistry()
	r.Register("req-1", func() {})
	r.RequestCancel("req-1")
	r.Unregister("req-1")

	assert.False(t, r.IsCancelled("req-1"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_IsCancelledCtx(t *testing.T) {
	r := NewRegistry()
	r.RequestCancel("req-9")

	t.Run("reads request id from execution context", func(t *testing.T) {
		ctx := execctx.Bind(context.Background(), execctx.Context{RequestID: "req-9"})
		assert.True(t, r.IsCancelledCtx(ctx))
	})

	t.Run("works from the worker domain too", func(t *testing.T) {
		ctx := execctx.BindWorker(context.Background(), execctx.Context{RequestID: "req-9"})
		assert.True(t, r.IsCancelledCtx(ctx))
	})

	t.Run("unbound context is never cancelled", func(t *testing.T) {
		assert.False(t, r.IsCancelledCtx(context.Background()))
	})
}

func TestRegistry_EmptyIDIsIgnored(t *testing.T) {
	r := NewRegistry()
	r.Register("", func() {})
	r.RequestCancel("")
	assert.False(t, r.IsCancelled(""))
	assert.Equal(t, 0, r.Len())
}

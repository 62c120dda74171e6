// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/datalia/sqlchat/services/orchestrator/agent"
	"github.com/datalia/sqlchat/services/orchestrator/cancel"
	"github.com/datalia/sqlchat/services/orchestrator/export"
	"github.com/datalia/sqlchat/services/orchestrator/observability"
	"github.com/datalia/sqlchat/services/orchestrator/services"
	"github.com/datalia/sqlchat/services/orchestrator/store"
)

var (
	metricsOnce sync.Once
	testMetrics *observability.ChatMetrics
)

// InitMetrics registers with the global registry and must run once per
// test binary.
func sharedMetrics() *observability.ChatMetrics {
	metricsOnce.Do(func() {
		testMetrics = observability.InitMetrics()
	})
	return testMetrics
}

type noopAgent struct{}

func (noopAgent) Blocking() bool { return false }

func (noopAgent) Process(ctx context.Context, query string) (agent.Reply, error) {
	return agent.TextReply("ok"), nil
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessionStore := store.NewMemoryStore(time.Hour)
	registry := cancel.NewRegistry()
	processor := services.NewProcessor(noopAgent{}, services.NewEnhancer(), registry, nil, time.Second)

	router := gin.New()
	SetupRoutes(router, Deps{
		QueryUseCase:   services.NewQueryUseCase(sessionStore, processor),
		SessionUseCase: services.NewSessionUseCase(sessionStore, time.Hour),
		ExportUseCase:  export.NewUseCase(sessionStore, ""),
		Registry:       registry,
		Store:          sessionStore,
		Metrics:        sharedMetrics(),
		StartedAt:      time.Now(),
	})
	return router
}

func TestSetupRoutes(t *testing.T) {
	router := setupTestRouter(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/v1/status", http.StatusOK},
		{http.MethodPost, "/v1/sessions", http.StatusCreated},
		{http.MethodPost, "/v1/sessions/cleanup", http.StatusOK},
		{http.MethodGet, "/v1/sessions/ghost/stats", http.StatusNotFound},
		{http.MethodPost, "/v1/chat/cancel/req-1", http.StatusAccepted},
		{http.MethodGet, "/v1/does-not-exist", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get("X-Request-ID"))
}

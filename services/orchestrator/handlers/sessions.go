// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datalia/sqlchat/services/orchestrator/services"
)

// CreateSession handles POST /v1/sessions.
func CreateSession(useCase *services.SessionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := useCase.Create()
		c.JSON(http.StatusCreated, gin.H{"session_id": id})
	}
}

// SessionStats handles GET /v1/sessions/:sessionId/stats.
func SessionStats(useCase *services.SessionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		stats, ok := useCase.Stats(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// statsSyncRequest is the client-side counter snapshot.
type statsSyncRequest struct {
	MessageCount int `json:"message_count"`
	QueryCount   int `json:"query_count"`
}

// SyncSessionStats handles PUT /v1/sessions/:sessionId/stats. The merge is
// monotonic server-side, so retries and stale clients are harmless.
func SyncSessionStats(useCase *services.SessionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")

		var req statsSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.MessageCount < 0 || req.QueryCount < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "counters cannot be negative"})
			return
		}

		merged, ok := useCase.Sync(id, req.MessageCount, req.QueryCount)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		slog.Info("synced session stats", "session_id", id,
			"message_count", merged.MessageCount, "query_count", merged.QueryCount)
		c.JSON(http.StatusOK, gin.H{
			"session_id":    id,
			"message_count": merged.MessageCount,
			"query_count":   merged.QueryCount,
			"updated_at":    merged.UpdatedAt,
		})
	}
}

// DeleteSession handles DELETE /v1/sessions/:sessionId.
func DeleteSession(useCase *services.SessionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		useCase.Delete(id)
		slog.Info("deleted session", "session_id", id)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}

// CleanupSessions handles POST /v1/sessions/cleanup.
func CleanupSessions(useCase *services.SessionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed := useCase.CleanupExpired()
		c.JSON(http.StatusOK, gin.H{
			"message": "Limpeza de sessões executada",
			"removed": removed,
		})
	}
}

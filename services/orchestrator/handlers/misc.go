// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalia/sqlchat/services/orchestrator/cancel"
	"github.com/datalia/sqlchat/services/orchestrator/store"
)

// maxTitleLength is how many characters of the first message become the
// conversation title.
const maxTitleLength = 50

const defaultTitle = "Nova conversa"

// Health handles GET /health.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}

// Root handles GET /.
func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API do Chatbot SQL está no ar!"})
	}
}

// Status handles GET /v1/status with live counters for the ops dashboard.
func Status(memStore *store.MemoryStore, registry *cancel.Registry, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"uptime_seconds":   int(time.Since(startedAt).Seconds()),
			"live_sessions":    memStore.Len(),
			"inflight_cancels": registry.Len(),
		})
	}
}

// titleRequest accepts either field name, matching the turn endpoint.
type titleRequest struct {
	Prompt string `json:"prompt"`
	Query  string `json:"query"`
}

// GenerateTitle handles POST /v1/chat/generate-title. The title is the first
// user message truncated to a display length; no model call is involved.
func GenerateTitle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req titleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"title": defaultTitle})
			return
		}

		text := strings.TrimSpace(req.Prompt)
		if text == "" {
			text = strings.TrimSpace(req.Query)
		}
		if text == "" {
			text = defaultTitle
		}

		if runes := []rune(text); len(runes) > maxTitleLength {
			text = string(runes[:maxTitleLength]) + "..."
		}
		c.JSON(http.StatusOK, gin.H{"title": text})
	}
}

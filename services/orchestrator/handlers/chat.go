// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the orchestrator's HTTP endpoints.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalia/sqlchat/services/orchestrator/cancel"
	"github.com/datalia/sqlchat/services/orchestrator/middleware"
	"github.com/datalia/sqlchat/services/orchestrator/observability"
	"github.com/datalia/sqlchat/services/orchestrator/services"
)

// StatusClientClosedRequest is the nginx convention for a client-cancelled
// request; net/http has no constant for it.
const StatusClientClosedRequest = 499

// ChatRequest is the turn payload. Older frontends send "prompt"; both are
// accepted and "query" wins when both are present.
type ChatRequest struct {
	Query     string `json:"query"`
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
}

func (r ChatRequest) text() string {
	if strings.TrimSpace(r.Query) != "" {
		return r.Query
	}
	return r.Prompt
}

// echoedAssistantPrefixes guard against a frontend accidentally resubmitting
// rendered assistant output as a user query.
var echoedAssistantPrefixes = []string{"assistant:", "assistente:"}

// ProcessQuery handles POST /v1/chat/query.
func ProcessQuery(useCase *services.QueryUseCase, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		query := req.text()
		lower := strings.ToLower(strings.TrimSpace(query))
		for _, prefix := range echoedAssistantPrefixes {
			if strings.HasPrefix(lower, prefix) {
				slog.Warn("rejected echoed assistant content as query")
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   "A pergunta parece ser uma resposta do assistente reenviada.",
				})
				return
			}
		}

		requestID := req.RequestID
		if requestID == "" {
			requestID = middleware.RequestIDFrom(c)
		}

		metrics.TurnStarted()
		start := time.Now()
		resp := useCase.Execute(c.Request.Context(), services.QueryRequest{
			Query:     query,
			SessionID: req.SessionID,
			RequestID: requestID,
		})
		metrics.TurnFinished()
		metrics.RecordRequest(observability.EndpointQuery, resp.Success, time.Since(start).Seconds())

		if resp.Success {
			c.JSON(http.StatusOK, resp)
			return
		}

		metrics.RecordError(observability.EndpointQuery, string(resp.ErrorKind))
		c.JSON(statusForKind(resp.ErrorKind), resp)
	}
}

// statusForKind maps the error taxonomy to HTTP status codes.
func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.ErrorKindValidation:
		return http.StatusBadRequest
	case services.ErrorKindQuota:
		return http.StatusTooManyRequests
	case services.ErrorKindCancelled:
		return StatusClientClosedRequest
	case services.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// CancelQuery handles POST /v1/chat/cancel/:requestId. Always accepted: the
// latch sticks even when the turn has not registered yet.
func CancelQuery(registry *cancel.Registry, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Param("requestId")
		if strings.TrimSpace(requestID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request id is required"})
			return
		}

		registry.RequestCancel(requestID)
		metrics.RecordCancellation()
		c.JSON(http.StatusAccepted, gin.H{
			"status":     "cancellation_requested",
			"request_id": requestID,
		})
	}
}

// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datalia/sqlchat/services/orchestrator/agent"
	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
	"github.com/datalia/sqlchat/services/orchestrator/store"
)

// ErrorKind buckets a failed turn for HTTP status mapping and client retry
// behavior.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "VALIDATION"
	ErrorKindTimeout    ErrorKind = "TIMEOUT"
	ErrorKindCancelled  ErrorKind = "CANCELLED"
	ErrorKindQuota      ErrorKind = "QUOTA_ERROR"
	ErrorKindModel      ErrorKind = "MODEL_ERROR"
	ErrorKindServer     ErrorKind = "SERVER_ERROR"
)

// Client-visible error codes carried alongside the kind.
const (
	codeEmptyQuery    = "EMPTY_QUERY"
	codeTimeout       = "TIMEOUT"
	codeCancelled     = "CANCELLED"
	codeQuotaExceeded = "QUOTA_EXCEEDED"
	codeModelError    = "MODEL_ERROR"
	codeProcessing    = "PROCESSING_ERROR"
)

// QueryRequest is one chat turn as submitted by the frontend. An empty
// SessionID starts a new conversation; an empty RequestID gets one assigned.
type QueryRequest struct {
	Query     string
	SessionID string
	RequestID string
}

// QueryResponse is the envelope every turn returns, success or failure.
type QueryResponse struct {
	Success           bool      `json:"success"`
	Data              string    `json:"data,omitempty"`
	Error             string    `json:"error,omitempty"`
	ErrorCode         string    `json:"error_code,omitempty"`
	ErrorKind         ErrorKind `json:"error_kind,omitempty"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
	SessionID         string    `json:"session_id,omitempty"`
	RequestID         string    `json:"request_id,omitempty"`

	// ContextUsed is true on every successful turn: the session transcript
	// always informs the reply, whether or not the query itself was rewritten.
	ContextUsed bool `json:"context_used"`

	Warning string `json:"warning,omitempty"`
}

// QueryUseCase drives one full chat turn: session resolution, transcript
// updates, agent dispatch via the processor and error classification.
type QueryUseCase struct {
	store     store.SessionStore
	processor *Processor
}

// NewQueryUseCase wires the turn use case.
func NewQueryUseCase(sessionStore store.SessionStore, processor *Processor) *QueryUseCase {
	return &QueryUseCase{store: sessionStore, processor: processor}
}

// Execute runs one turn. Failures come back inside the response envelope,
// never as a Go error; the handler maps ErrorKind to a status code.
func (u *QueryUseCase) Execute(ctx context.Context, req QueryRequest) QueryResponse {
	if strings.TrimSpace(req.Query) == "" {
		return QueryResponse{
			Success:   false,
			Error:     "Query vazia fornecida.",
			ErrorCode: codeEmptyQuery,
			ErrorKind: ErrorKindValidation,
		}
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	session := u.resolveSession(req.SessionID)
	sessionID := session.ID().String()

	session.AddMessage(datatypes.NewMessage(datatypes.RoleUser, req.Query))

	result, err := u.processor.Process(ctx, req.Query, session, requestID)
	if err != nil {
		resp := classifyError(err)
		resp.SessionID = sessionID
		resp.RequestID = requestID
		return resp
	}

	session.AddMessage(datatypes.NewMessage(datatypes.RoleAssistant, result.Answer))

	resp := QueryResponse{
		Success:     true,
		Data:        result.Answer,
		SessionID:   sessionID,
		RequestID:   requestID,
		ContextUsed: true,
	}
	if saveErr := u.store.Save(session); saveErr != nil {
		// The answer is already computed; losing persistence degrades the
		// next turn's context but this one still succeeded.
		slog.Error("failed to persist session after turn",
			"session_id", sessionID, "error", saveErr)
		resp.Warning = "Sessão não pôde ser persistida; o contexto pode ser perdido."
	}
	return resp
}

func (u *QueryUseCase) resolveSession(rawID string) *datatypes.Session {
	id, err := datatypes.NewSessionID(rawID)
	if err == nil {
		if session, ok := u.store.Get(id); ok {
			slog.Info("using existing session", "session_id", id)
			return session
		}
		slog.Info("session not found, creating a new one", "session_id", id)
	}
	return u.store.Create()
}

// classifyError maps a failed turn onto the error taxonomy. Typed errors win;
// the string sniffing below only catches what untyped agent backends leak.
func classifyError(err error) QueryResponse {
	switch {
	case errors.Is(err, agent.ErrCancelled):
		return QueryResponse{
			Success:   false,
			Error:     "Operação cancelada pelo usuário.",
			ErrorCode: codeCancelled,
			ErrorKind: ErrorKindCancelled,
		}
	case errors.Is(err, agent.ErrTimeout):
		return QueryResponse{
			Success:   false,
			Error:     "A consulta demorou demais e foi interrompida.",
			ErrorCode: codeTimeout,
			ErrorKind: ErrorKindTimeout,
		}
	}

	var quotaErr *agent.QuotaError
	if errors.As(err, &quotaErr) {
		return QueryResponse{
			Success:           false,
			Error:             "Limite de uso da API atingido. Tente novamente em instantes.",
			ErrorCode:         codeQuotaExceeded,
			ErrorKind:         ErrorKindQuota,
			RetryAfterSeconds: quotaErr.RetryAfterSeconds,
		}
	}

	var modelErr *agent.ModelError
	if errors.As(err, &modelErr) {
		return QueryResponse{
			Success:   false,
			Error:     "O modelo não conseguiu completar a resposta: " + modelErr.Message,
			ErrorCode: codeModelError,
			ErrorKind: ErrorKindModel,
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429"),
		strings.Contains(lower, "quota"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "resource exhausted"):
		return QueryResponse{
			Success:           false,
			Error:             "Limite de uso da API atingido. Tente novamente em instantes.",
			ErrorCode:         codeQuotaExceeded,
			ErrorKind:         ErrorKindQuota,
			RetryAfterSeconds: agent.ParseRetryAfter(err.Error()),
		}
	case strings.Contains(lower, "token") &&
		(strings.Contains(lower, "limit") || strings.Contains(lower, "maximum")):
		return QueryResponse{
			Success:   false,
			Error:     "A resposta excedeu o limite de tokens do modelo.",
			ErrorCode: codeModelError,
			ErrorKind: ErrorKindModel,
		}
	}

	return QueryResponse{
		Success:   false,
		Error:     "Erro ao processar consulta: " + err.Error(),
		ErrorCode: codeProcessing,
		ErrorKind: ErrorKindServer,
	}
}

// SessionStatsResponse mirrors what the frontend renders in its session
// debug panel.
type SessionStatsResponse struct {
	SessionID         string         `json:"session_id"`
	CreatedAt         time.Time      `json:"created_at"`
	LastActivity      time.Time      `json:"last_activity"`
	MessageCount      int            `json:"message_count"`
	QueryCount        int            `json:"query_count"`
	HasActiveDataset  bool           `json:"has_active_dataset"`
	ActiveDatasetInfo map[string]any `json:"active_dataset_info,omitempty"`
}

// SessionUseCase covers session lifecycle operations outside the chat turn.
type SessionUseCase struct {
	store   store.SessionStore
	timeout time.Duration
}

// NewSessionUseCase wires session management against the store.
func NewSessionUseCase(sessionStore store.SessionStore, timeout time.Duration) *SessionUseCase {
	if timeout <= 0 {
		timeout = store.DefaultSessionTimeout
	}
	return &SessionUseCase{store: sessionStore, timeout: timeout}
}

// Create starts a fresh session and returns its id.
func (u *SessionUseCase) Create() string {
	return u.store.Create().ID().String()
}

// Stats returns the session snapshot, or false when the id is unknown or
// expired.
func (u *SessionUseCase) Stats(rawID string) (SessionStatsResponse, bool) {
	id, err := datatypes.NewSessionID(rawID)
	if err != nil {
		return SessionStatsResponse{}, false
	}
	session, ok := u.store.Get(id)
	if !ok {
		return SessionStatsResponse{}, false
	}

	stats := session.Stats()
	resp := SessionStatsResponse{
		SessionID:    rawID,
		CreatedAt:    session.CreatedAt(),
		LastActivity: session.LastActivity(),
		MessageCount: stats.MessageCount,
		QueryCount:   stats.QueryCount,
	}
	if active := session.ActiveDataset(); active != nil {
		resp.HasActiveDataset = true
		resp.ActiveDatasetInfo = map[string]any{
			"row_count": active.RowCount,
			"columns":   active.Columns,
		}
	}
	return resp, true
}

// Sync reconciles client-side counters with the server session. The merge is
// monotonic, so a stale client can only raise counts, never lower them.
func (u *SessionUseCase) Sync(rawID string, messageCount, queryCount int) (datatypes.SessionStats, bool) {
	id, err := datatypes.NewSessionID(rawID)
	if err != nil {
		return datatypes.SessionStats{}, false
	}
	session, ok := u.store.Get(id)
	if !ok {
		return datatypes.SessionStats{}, false
	}
	return session.SyncStats(messageCount, queryCount), true
}

// Delete removes a session outright.
func (u *SessionUseCase) Delete(rawID string) {
	id, err := datatypes.NewSessionID(rawID)
	if err != nil {
		return
	}
	u.store.Delete(id)
}

// CleanupExpired sweeps idle sessions and reports how many were dropped.
func (u *SessionUseCase) CleanupExpired() int {
	return u.store.Sweep(u.timeout)
}

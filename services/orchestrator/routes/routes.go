// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datalia/sqlchat/services/orchestrator/cancel"
	"github.com/datalia/sqlchat/services/orchestrator/export"
	"github.com/datalia/sqlchat/services/orchestrator/handlers"
	"github.com/datalia/sqlchat/services/orchestrator/middleware"
	"github.com/datalia/sqlchat/services/orchestrator/observability"
	"github.com/datalia/sqlchat/services/orchestrator/services"
	"github.com/datalia/sqlchat/services/orchestrator/store"
)

// Deps bundles everything the routes need; main wires it once at startup.
type Deps struct {
	QueryUseCase   *services.QueryUseCase
	SessionUseCase *services.SessionUseCase
	ExportUseCase  *export.UseCase
	Registry       *cancel.Registry
	Store          *store.MemoryStore
	Metrics        *observability.ChatMetrics
	StartedAt      time.Time
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID())

	router.GET("/", handlers.Root())
	router.GET("/health", handlers.Health())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/status", handlers.Status(deps.Store, deps.Registry, deps.StartedAt))

		chat := v1.Group("/chat")
		{
			chat.POST("/query", handlers.ProcessQuery(deps.QueryUseCase, deps.Metrics))
			chat.POST("/cancel/:requestId", handlers.CancelQuery(deps.Registry, deps.Metrics))
			chat.POST("/generate-title", handlers.GenerateTitle())
		}

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession(deps.SessionUseCase))
			sessions.POST("/cleanup", handlers.CleanupSessions(deps.SessionUseCase))
			sessions.GET("/:sessionId/stats", handlers.SessionStats(deps.SessionUseCase))
			sessions.PUT("/:sessionId/stats", handlers.SyncSessionStats(deps.SessionUseCase))
			sessions.GET("/:sessionId/export", handlers.ExportSession(deps.ExportUseCase, deps.Metrics))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.SessionUseCase))
		}
	}
}

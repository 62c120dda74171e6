// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datalia/sqlchat/services/orchestrator/export"
	"github.com/datalia/sqlchat/services/orchestrator/observability"
)

// ExportSession handles GET /v1/sessions/:sessionId/export?format=json.
func ExportSession(useCase *export.UseCase, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		format, err := export.ParseFormat(c.DefaultQuery("format", "json"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		doc, err := useCase.Execute(id, format)
		if err != nil {
			var unsupported *export.ErrUnsupportedFormat
			if errors.As(err, &unsupported) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("export failed", "session_id", id, "format", format, "error", err)
			metrics.RecordRequest(observability.EndpointExport, false, time.Since(start).Seconds())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}
		metrics.RecordRequest(observability.EndpointExport, true, time.Since(start).Seconds())

		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", doc.Filename))
		c.Data(http.StatusOK, doc.ContentType, doc.Content)
	}
}

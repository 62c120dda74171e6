// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export renders a session transcript as a downloadable document.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
)

// Format names a supported export document type.
type Format string

const (
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat covers formats the service knows of but does not
// render server-side (pdf, excel).
type ErrUnsupportedFormat struct {
	Format string
}

func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

// Exporter renders one session into a byte payload.
type Exporter interface {
	Export(session *datatypes.Session) ([]byte, error)
	ContentType() string
	FileExtension() string
}

// For returns the exporter for format.
func For(format Format) (Exporter, error) {
	switch format {
	case FormatJSON:
		return jsonExporter{}, nil
	case FormatTXT:
		return txtExporter{}, nil
	case FormatCSV:
		return csvExporter{}, nil
	default:
		return nil, &ErrUnsupportedFormat{Format: string(format)}
	}
}

// ParseFormat normalizes a client-supplied format string.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FormatJSON, FormatTXT, FormatCSV:
		return f, nil
	default:
		return "", &ErrUnsupportedFormat{Format: raw}
	}
}

type jsonExporter struct{}

type jsonDocument struct {
	SessionID  string                  `json:"session_id"`
	ExportedAt time.Time               `json:"exported_at"`
	CreatedAt  time.Time               `json:"created_at"`
	Messages   []datatypes.Message     `json:"messages"`
	Queries    []datatypes.QueryResult `json:"recent_queries,omitempty"`
}

func (jsonExporter) Export(session *datatypes.Session) ([]byte, error) {
	doc := jsonDocument{
		SessionID:  session.ID().String(),
		ExportedAt: time.Now().UTC(),
		CreatedAt:  session.CreatedAt(),
		Messages:   session.MessageHistory(),
		Queries:    session.RecentQueryResults(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (jsonExporter) ContentType() string   { return "application/json" }
func (jsonExporter) FileExtension() string { return "json" }

type txtExporter struct{}

func (txtExporter) Export(session *datatypes.Session) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversa %s\n", session.ID())
	fmt.Fprintf(&b, "Iniciada em %s\n\n", session.CreatedAt().Format("02/01/2006 15:04"))

	for _, msg := range session.MessageHistory() {
		label := "Usuário"
		if msg.Role == datatypes.RoleAssistant {
			label = "Assistente"
		}
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n",
			msg.Timestamp.Format("15:04:05"), label, msg.Content)
	}
	return []byte(b.String()), nil
}

func (txtExporter) ContentType() string   { return "text/plain; charset=utf-8" }
func (txtExporter) FileExtension() string { return "txt" }

type csvExporter struct{}

func (csvExporter) Export(session *datatypes.Session) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "role", "content"}); err != nil {
		return nil, err
	}
	for _, msg := range session.MessageHistory() {
		record := []string{
			msg.Timestamp.Format(time.RFC3339),
			msg.Role,
			msg.Content,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (csvExporter) ContentType() string   { return "text/csv; charset=utf-8" }
func (csvExporter) FileExtension() string { return "csv" }

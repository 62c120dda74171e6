// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
	"github.com/datalia/sqlchat/services/orchestrator/store"
)

// Document is a rendered export ready to be served.
type Document struct {
	Content     []byte
	ContentType string
	Filename    string
	Filepath    string
}

// UseCase renders session transcripts. When dir is non-empty, each export is
// also written to disk for later retrieval.
type UseCase struct {
	store store.SessionStore
	dir   string
}

// NewUseCase wires the export use case. dir may be empty to skip disk copies.
func NewUseCase(sessionStore store.SessionStore, dir string) *UseCase {
	return &UseCase{store: sessionStore, dir: dir}
}

// Execute renders the session in the requested format. An unknown session id
// exports as an empty transcript under that id rather than failing, so a
// client can always download something for a link it holds.
func (u *UseCase) Execute(rawID string, format Format) (Document, error) {
	exporter, err := For(format)
	if err != nil {
		return Document{}, err
	}

	id, err := datatypes.NewSessionID(rawID)
	if err != nil {
		return Document{}, err
	}

	session, ok := u.store.Get(id)
	if !ok {
		session = datatypes.NewSession(id)
		if err := u.store.Save(session); err != nil {
			slog.Warn("could not persist placeholder session for export",
				"session_id", id, "error", err)
		}
	}

	content, err := exporter.Export(session)
	if err != nil {
		return Document{}, fmt.Errorf("rendering %s export: %w", format, err)
	}

	doc := Document{
		Content:     content,
		ContentType: exporter.ContentType(),
		Filename:    fmt.Sprintf("chat-%s.%s", id, exporter.FileExtension()),
	}
	if u.dir != "" {
		doc.Filepath = u.saveToDisk(doc.Filename, content)
	}
	return doc, nil
}

// saveToDisk is best effort; the download still works without the disk copy.
func (u *UseCase) saveToDisk(filename string, content []byte) string {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		slog.Warn("could not create export directory", "dir", u.dir, "error", err)
		return ""
	}
	path := filepath.Join(u.dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		slog.Warn("could not write export file", "path", path, "error", err)
		return ""
	}
	return path
}

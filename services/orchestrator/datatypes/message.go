// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the domain model shared across the orchestrator:
// sessions, messages and query results.
package datatypes

import "time"

// Conversation roles. The transcript only ever holds these two; system
// prompts are assembled per-call and never stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn entry in a session transcript.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage stamps a message with the current time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

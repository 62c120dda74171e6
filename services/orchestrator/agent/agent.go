// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent defines the chat agent capability consumed by the query
// processor, plus the adapters that implement it.
package agent

import (
	"context"
	"fmt"
	"strings"
)

// ChatAgent turns a natural-language query into an answer. Implementations
// may be slow and may fail; the processor owns timeout and cancellation.
//
// Blocking reports the agent's execution domain. A non-blocking agent honors
// ctx and runs inline on the caller's goroutine; a blocking one ignores ctx
// internally and must be dispatched to a worker goroutine by the caller.
type ChatAgent interface {
	Process(ctx context.Context, query string) (Reply, error)
	Blocking() bool
}

// ReplyKind tags the shape an agent reply arrived in. Shapes are decoded to
// a single canonical string exactly once, at this boundary; downstream code
// only ever sees the string.
type ReplyKind int

const (
	// ReplyText is a plain final answer.
	ReplyText ReplyKind = iota

	// ReplyBlocks is a structured multi-block message. Only non-thinking
	// blocks contribute text.
	ReplyBlocks

	// ReplyRaw is anything else the backend produced; rendered with Sprint.
	ReplyRaw
)

// BlockTypeThinking marks reasoning blocks that never reach the user.
const BlockTypeThinking = "thinking"

// Block is one segment of a structured reply.
type Block struct {
	Type string
	Text string
}

// Reply is the tagged union of response shapes an agent backend can produce.
type Reply struct {
	Kind   ReplyKind
	Text   string
	Blocks []Block
	Raw    any
}

// TextReply wraps a plain string answer.
func TextReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

// assistantPrefixes are role artifacts some backends leak into the answer.
var assistantPrefixes = []string{
	"assistant:", "assistant :", "assistente:", "assistente :",
}

// Canonical flattens the reply into the single string the rest of the system
// works with: thinking blocks dropped, role prefixes stripped.
func (r Reply) Canonical() string {
	var text string
	switch r.Kind {
	case ReplyText:
		text = r.Text
	case ReplyBlocks:
		var parts []string
		for _, b := range r.Blocks {
			if b.Type == BlockTypeThinking {
				continue
			}
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		text = strings.Join(parts, " ")
	default:
		text = fmt.Sprint(r.Raw)
	}
	return stripRolePrefix(strings.TrimSpace(text))
}

func stripRolePrefix(text string) string {
	lower := strings.ToLower(text)
	for _, prefix := range assistantPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return text
}

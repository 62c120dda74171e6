// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReply_Canonical(t *testing.T) {
	t.Run("plain text passes through trimmed", func(t *testing.T) {
		r := TextReply("  Foram encontrados 42 registros.  ")
		assert.Equal(t, "Foram encontrados 42 registros.", r.Canonical())
	})

	t.Run("thinking blocks are dropped", func(t *testing.T) {
		r := Reply{Kind: ReplyBlocks, Blocks: []Block{
			{Type: BlockTypeThinking, Text: "considerando joins possiveis"},
			{Type: "text", Text: "Segue a consulta:"},
			{Type: "text", Text: "SELECT TOP 10 * FROM vendas"},
		}}
		assert.Equal(t, "Segue a consulta: SELECT TOP 10 * FROM vendas", r.Canonical())
	})

	t.Run("empty blocks contribute nothing", func(t *testing.T) {
		r := Reply{Kind: ReplyBlocks, Blocks: []Block{
			{Type: "text", Text: ""},
			{Type: "text", Text: "resposta"},
		}}
		assert.Equal(t, "resposta", r.Canonical())
	})

	t.Run("raw payloads are rendered with Sprint", func(t *testing.T) {
		r := Reply{Kind: ReplyRaw, Raw: 12345}
		assert.Equal(t, "12345", r.Canonical())
	})

	t.Run("assistant prefixes are stripped case-insensitively", func(t *testing.T) {
		cases := map[string]string{
			"Assistant: ola":    "ola",
			"assistant : ola":   "ola",
			"Assistente: ola":   "ola",
			"ASSISTENTE : ola":  "ola",
			"sem prefixo: nada": "sem prefixo: nada",
		}
		for in, want := range cases {
			assert.Equal(t, want, TextReply(in).Canonical(), "input %q", in)
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 7, ParseRetryAfter("Rate limit reached. Please retry in 7s."))
	assert.Equal(t, 120, ParseRetryAfter("please retry in 120 seconds"))
	assert.Equal(t, 30, ParseRetryAfter("rate limit reached"))
	assert.Equal(t, 30, ParseRetryAfter("retry in soon"))
}

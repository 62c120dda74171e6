// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services holds the application layer: query enhancement, agent
// dispatch and the turn use cases wired by the HTTP handlers.
package services

import (
	"fmt"
	"strings"

	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
)

// contextualKeywords are the Portuguese back-references that signal a
// follow-up question about earlier results. Matching is plain substring
// matching on the lowered query; false positives only cost prompt tokens.
var contextualKeywords = []string{
	"dessas",
	"desses",
	"desta",
	"deste",
	"disso",
	"deles",
	"delas",
	"anterior",
	"últimos",
	"últimas",
	"mesmo",
	"mesma",
	"mesmos",
	"mesmas",
	"esses",
	"essas",
	"aqueles",
	"aquelas",
	"os dados",
	"as informações",
	"resultado",
	"resultados",
	"consulta anterior",
	"query anterior",
}

// Enhancer rewrites follow-up questions so the agent sees the conversation
// context and the query that produced the dataset being referred to.
type Enhancer struct{}

// NewEnhancer creates a stateless enhancer.
func NewEnhancer() *Enhancer {
	return &Enhancer{}
}

// NeedsContext reports whether query contains a contextual back-reference.
func (e *Enhancer) NeedsContext(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range contextualKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Enhance returns query unchanged unless it is a follow-up and the session
// has an active dataset. Otherwise it wraps the question in a structured
// Portuguese prompt carrying the conversation summary and the last query.
func (e *Enhancer) Enhance(query string, session *datatypes.Session) string {
	active := session.ActiveDataset()
	if !e.NeedsContext(query) || active == nil {
		return query
	}

	return fmt.Sprintf(`
CONTEXTO DA CONVERSA:
%s

ÚLTIMA CONSULTA EXECUTADA:
%s

PERGUNTA ATUAL DO USUÁRIO:
%s

INSTRUÇÕES ESPECIAIS:
- Use os dados da consulta anterior como base para responder a pergunta atual
- Se o usuário se refere a "dessas", "desses", etc., ele está falando dos dados da última consulta
- Considere o contexto completo da conversa ao formular a resposta SQL
- Se possível, reutilize ou adapte a consulta anterior em vez de criar uma nova do zero
`, session.ContextSummary(), active.Query, query)
}

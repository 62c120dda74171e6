// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/datalia/sqlchat/services/orchestrator/schema"
)

const (
	defaultOpenAIModel = openai.GPT4oMini
	openAIKeyEnv       = "OPENAI_API_KEY"
	openAIKeySecret    = "/run/secrets/openai_api_key"
)

// systemPromptTemplate frames the model as a SQL analyst for a Brazilian
// audience. The schema snapshot is interpolated verbatim.
const systemPromptTemplate = `Voce e um analista de dados que responde perguntas em portugues sobre um banco de dados SQL Server.

Esquema disponivel (tabela(colunas)):
%s

Regras:
- Gere consultas T-SQL validas usando apenas as tabelas e colunas do esquema.
- Use TOP em vez de LIMIT.
- Responda sempre em portugues, de forma direta.
- Quando a pergunta pedir dados, inclua a consulta SQL completa na resposta.
- Nunca invente tabelas ou colunas.`

// OpenAIAgent answers natural-language questions by prompting an OpenAI chat
// model with the database schema. The client honors ctx, so the agent runs
// inline on the caller's goroutine.
type OpenAIAgent struct {
	client *openai.Client
	model  string
	schema schema.Provider
}

// NewOpenAIAgent builds the adapter. The API key is read from the environment
// with a Docker secrets file fallback.
func NewOpenAIAgent(model string, provider schema.Provider) (*OpenAIAgent, error) {
	key, err := resolveOpenAIKey()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	slog.Info("initializing OpenAI agent", "model", model)
	return &OpenAIAgent{
		client: openai.NewClient(key),
		model:  model,
		schema: provider,
	}, nil
}

func resolveOpenAIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(openAIKeyEnv)); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(openAIKeySecret)
	if err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("no OpenAI API key in %s or %s", openAIKeyEnv, openAIKeySecret)
}

// Blocking reports false: requests are issued through a context-aware client.
func (a *OpenAIAgent) Blocking() bool { return false }

// Process sends the (possibly context-enhanced) query to the model.
func (a *OpenAIAgent) Process(ctx context.Context, query string) (Reply, error) {
	summary, err := a.schema.Summary(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("loading schema summary: %w", err)
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPromptTemplate, summary),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: query,
			},
		},
	})
	if err != nil {
		return Reply{}, translateOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, &ModelError{Message: "empty completion"}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return Reply{}, &ModelError{Message: "completion truncated at token limit"}
	}
	return TextReply(choice.Message.Content), nil
}

// translateOpenAIError maps provider failures onto the agent error taxonomy
// so the layers above never see SDK types.
func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return &QuotaError{
				RetryAfterSeconds: ParseRetryAfter(apiErr.Message),
				Message:           apiErr.Message,
			}
		case 400:
			if strings.Contains(strings.ToLower(apiErr.Message), "token") {
				return &ModelError{Message: apiErr.Message}
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return fmt.Errorf("openai request failed: %w", err)
}

// ParseRetryAfter extracts the "retry in Ns" hint providers embed in 429
// messages. Defaults to 30 seconds when no hint is present.
func ParseRetryAfter(message string) int {
	lower := strings.ToLower(message)
	idx := strings.Index(lower, "retry in ")
	if idx < 0 {
		return 30
	}
	rest := lower[idx+len("retry in "):]
	seconds := 0
	for _, r := range rest {
		if r < '0' || r > '9' {
			break
		}
		seconds = seconds*10 + int(r-'0')
	}
	if seconds <= 0 {
		return 30
	}
	return seconds
}

// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the agent exceeded the per-turn wall-clock budget.
	ErrTimeout = errors.New("agent call timed out")

	// ErrCancelled means cooperative cancellation was observed mid-turn.
	ErrCancelled = errors.New("operation cancelled by user")
)

// QuotaError is an upstream rate or usage limit. RetryAfterSeconds is a hint
// parsed from the provider response when available.
type QuotaError struct {
	RetryAfterSeconds int
	Message           string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("upstream quota exhausted: %s", e.Message)
}

// ModelError means the upstream model truncated or rejected its own output,
// typically by hitting a token limit.
type ModelError struct {
	Message string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model output error: %s", e.Message)
}

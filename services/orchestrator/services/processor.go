// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/datalia/sqlchat/services/orchestrator/agent"
	"github.com/datalia/sqlchat/services/orchestrator/cancel"
	"github.com/datalia/sqlchat/services/orchestrator/datatypes"
	"github.com/datalia/sqlchat/services/orchestrator/execctx"
	"github.com/datalia/sqlchat/services/orchestrator/schema"
)

var tracer = otel.Tracer("github.com/datalia/sqlchat/services/orchestrator/services")

// DefaultTurnTimeout is the wall-clock budget for one agent turn.
const DefaultTurnTimeout = 120 * time.Second

// sqlCapturePattern finds the first SELECT statement an answer carries.
// The capture stops at a semicolon or a blank line, otherwise it runs to
// the end of the answer.
var sqlCapturePattern = regexp.MustCompile(`(?is)\bSELECT\s+.+?(?:;|\n\n|$)`)

// TurnResult is what one successful agent turn produced.
type TurnResult struct {
	Answer   string
	Enhanced bool
}

// QueryRunner executes a generated SELECT against the warehouse. The
// processor uses it to materialize the query an answer carries, so follow-up
// turns see real row counts and session query counters move.
type QueryRunner interface {
	Run(ctx context.Context, query string) (*schema.Result, error)
}

// Processor runs one agent turn with timeout, cancellation and context
// enhancement. It owns the dispatch decision: agents that honor ctx run
// inline; blocking agents are pushed onto a worker goroutine and raced
// against the timeout and the cancel latch.
type Processor struct {
	agent    agent.ChatAgent
	enhancer *Enhancer
	registry *cancel.Registry
	runner   QueryRunner
	timeout  time.Duration
}

// NewProcessor wires a processor. runner may be nil when no warehouse is
// reachable; captured queries are then recorded without being executed. A
// non-positive timeout falls back to DefaultTurnTimeout.
func NewProcessor(chatAgent agent.ChatAgent, enhancer *Enhancer, registry *cancel.Registry, runner QueryRunner, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	return &Processor{
		agent:    chatAgent,
		enhancer: enhancer,
		registry: registry,
		runner:   runner,
		timeout:  timeout,
	}
}

// Process executes one turn for session. The request id must already be
// known to the client so it can cancel mid-flight.
func (p *Processor) Process(ctx context.Context, query string, session *datatypes.Session, requestID string) (TurnResult, error) {
	ctx, span := tracer.Start(ctx, "processor.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", session.ID().String()),
		attribute.String("request.id", requestID),
	)

	if p.registry.IsCancelled(requestID) {
		// The cancel raced ahead of the turn; consume the latch so a
		// reused request id is not poisoned.
		p.registry.Unregister(requestID)
		return TurnResult{}, agent.ErrCancelled
	}

	enhanced := p.enhancer.Enhance(query, session)
	wasEnhanced := enhanced != query
	span.SetAttributes(attribute.Bool("query.enhanced", wasEnhanced))

	var (
		reply agent.Reply
		err   error
	)
	if p.agent.Blocking() {
		reply, err = p.runBlocking(ctx, enhanced, session, requestID)
	} else {
		reply, err = p.runInline(ctx, enhanced, session, requestID)
	}
	if err != nil {
		return TurnResult{}, err
	}

	answer := reply.Canonical()
	p.captureQueryResult(ctx, answer, session, requestID)

	return TurnResult{Answer: answer, Enhanced: wasEnhanced}, nil
}

// runInline executes a context-aware agent on the caller's goroutine under a
// deadline, with the cancel latch wired straight into the context.
func (p *Processor) runInline(ctx context.Context, query string, session *datatypes.Session, requestID string) (agent.Reply, error) {
	runCtx, cancelRun := context.WithTimeout(ctx, p.timeout)
	defer cancelRun()

	p.registry.Register(requestID, cancelRun)
	defer p.registry.Unregister(requestID)

	runCtx = execctx.Bind(runCtx, execctx.Context{Session: session, RequestID: requestID})

	reply, err := p.agent.Process(runCtx, query)
	if err != nil {
		return agent.Reply{}, p.translate(runCtx, requestID, err)
	}
	if p.registry.IsCancelled(requestID) {
		return agent.Reply{}, agent.ErrCancelled
	}
	return reply, nil
}

// runBlocking dispatches an agent that ignores ctx to its own goroutine and
// races the result against the timeout and the cancel latch. The worker gets
// a detached context so a binding never outlives the turn on a reused
// goroutine.
func (p *Processor) runBlocking(ctx context.Context, query string, session *datatypes.Session, requestID string) (agent.Reply, error) {
	cancelCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	p.registry.Register(requestID, cancelRun)
	defer p.registry.Unregister(requestID)

	type outcome struct {
		reply agent.Reply
		err   error
	}
	resultCh := make(chan outcome, 1)

	workerCtx := execctx.BindWorker(context.Background(),
		execctx.Context{Session: session, RequestID: requestID})
	go func() {
		reply, err := p.agent.Process(workerCtx, query)
		resultCh <- outcome{reply: reply, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return agent.Reply{}, p.translate(cancelCtx, requestID, res.err)
		}
		if p.registry.IsCancelled(requestID) {
			return agent.Reply{}, agent.ErrCancelled
		}
		return res.reply, nil
	case <-timer.C:
		// The worker keeps running until its call returns; its reply lands
		// in the buffered channel, which nothing reads after this return,
		// so the stale result is dropped with it.
		p.registry.RequestCancel(requestID)
		slog.Warn("agent turn timed out", "request_id", requestID, "timeout", p.timeout)
		return agent.Reply{}, agent.ErrTimeout
	case <-cancelCtx.Done():
		if p.registry.IsCancelled(requestID) {
			return agent.Reply{}, agent.ErrCancelled
		}
		return agent.Reply{}, p.translate(cancelCtx, requestID, cancelCtx.Err())
	}
}

// translate maps low-level failures to the agent error taxonomy, giving the
// cancel latch precedence over whatever the context reports.
func (p *Processor) translate(ctx context.Context, requestID string, err error) error {
	if p.registry.IsCancelled(requestID) {
		return agent.ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return agent.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return agent.ErrCancelled
	}
	return err
}

// captureQueryResult records the SELECT an answer contains, if any, so
// follow-up questions can refer back to it. With a runner the statement is
// executed under the session's execution context and recorded with its real
// row count, which is what promotes it to the active dataset. Without one,
// or when execution fails, the statement was only quoted in prose; it is
// recorded with zero rows and never displaces the active dataset.
func (p *Processor) captureQueryResult(ctx context.Context, answer string, session *datatypes.Session, requestID string) {
	match := sqlCapturePattern.FindString(answer)
	if match == "" {
		return
	}
	query := strings.TrimSuffix(strings.TrimSpace(match), ";")

	if p.runner != nil {
		runCtx := execctx.Bind(ctx, execctx.Context{Session: session, RequestID: requestID})
		res, err := p.runner.Run(runCtx, query)
		if err == nil {
			session.AddQueryResult(datatypes.NewQueryResult(
				query, "Query executada com sucesso", len(res.Rows), res.Columns, datatypes.QueryTypeSelect))
			return
		}
		slog.Warn("captured query did not execute",
			"request_id", requestID, "error", err)
	}

	session.AddQueryResult(datatypes.NewQueryResult(
		query, "Query executada com sucesso", 0, nil, datatypes.QueryTypeSelect))
}

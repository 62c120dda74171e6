// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	_ "modernc.org/sqlite"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/datalia/sqlchat/services/orchestrator/agent"
	"github.com/datalia/sqlchat/services/orchestrator/cancel"
	"github.com/datalia/sqlchat/services/orchestrator/config"
	"github.com/datalia/sqlchat/services/orchestrator/export"
	"github.com/datalia/sqlchat/services/orchestrator/observability"
	"github.com/datalia/sqlchat/services/orchestrator/routes"
	"github.com/datalia/sqlchat/services/orchestrator/schema"
	"github.com/datalia/sqlchat/services/orchestrator/services"
	"github.com/datalia/sqlchat/services/orchestrator/store"
)

const serviceName = "sqlchat-orchestrator"

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancelShutdown := context.WithTimeout(ctx, time.Second*5)
		defer cancelShutdown()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	if cfg.TracingEnabled {
		cleanup, err := initTracer(cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	metrics := observability.InitMetrics()

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database %s: %v", cfg.DatabasePath, err)
	}
	defer db.Close()

	schemaCache := schema.NewCache(cfg.SchemaCachePath, cfg.SchemaCacheTTL)
	provider := schema.NewSQLProvider(db, schemaCache)
	runner := schema.NewRunner(db)

	chatAgent, err := agent.NewOpenAIAgent(cfg.OpenAIModel, provider)
	if err != nil {
		log.Fatalf("failed to initialize chat agent: %v", err)
	}

	sessionStore := store.NewMemoryStore(cfg.SessionTimeout)
	registry := cancel.NewRegistry()
	processor := services.NewProcessor(chatAgent, services.NewEnhancer(), registry, runner, cfg.TurnTimeout)

	deps := routes.Deps{
		QueryUseCase:   services.NewQueryUseCase(sessionStore, processor),
		SessionUseCase: services.NewSessionUseCase(sessionStore, cfg.SessionTimeout),
		ExportUseCase:  export.NewUseCase(sessionStore, cfg.ExportDir),
		Registry:       registry,
		Store:          sessionStore,
		Metrics:        metrics,
		StartedAt:      time.Now(),
	}

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, deps)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting the orchestrator server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				removed := sessionStore.Sweep(cfg.SessionTimeout)
				metrics.RecordSweep(removed, sessionStore.Len())
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

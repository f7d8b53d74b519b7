// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command liner starts the Aleutian Liner API server.
//
// Aleutian Liner resolves song titles to short sourced narratives
// through a tiered pipeline: verified catalog, result cache, live
// source fan-out with synthesis, and an honest fallback.
//
// Usage:
//
//	go run ./cmd/liner
//	go run ./cmd/liner -config /etc/liner/liner.yaml
//	go run ./cmd/liner -addr :9090 -debug
//
// With Ollama (for narrative synthesis):
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=qwen3 go run ./cmd/liner
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/liner/health
//
//	# One-shot resolution
//	curl -X POST http://localhost:8080/v1/liner/resolve \
//	  -H "Content-Type: application/json" \
//	  -d '{"title": "Diễm Xưa", "artist": "Khánh Ly"}'
//
//	# Streamed resolution
//	curl -N "http://localhost:8080/v1/liner/resolve/stream?title=H%E1%BA%A1%20Tr%E1%BA%AFng"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/liner/services/liner"
	"github.com/AleutianAI/liner/services/liner/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (empty uses built-in defaults)")
	addr := flag.String("addr", "", "Listen address override, e.g. :9090")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// Load configuration before touching anything stateful.
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if *debug || cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so resolver spans join caller traces.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	svc, err := liner.NewService(cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to assemble service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers := liner.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-liner"))
	router.Use(liner.RateLimitMiddleware(cfg.Server.RequestsPerSecond, cfg.Server.Burst))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	liner.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(cfg.Server.Addr)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Aleutian Liner server")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Warn("Forced shutdown", slog.String("error", err.Error()))
		}
		if err := svc.Close(); err != nil {
			slog.Warn("Failed to close service", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Starting Aleutian Liner server", slog.String("address", cfg.Server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func printBanner(addr string) {
	banner := `
╔════════════════════════════════════════════════════════════╗
║                   ALEUTIAN LINER SERVER                    ║
╠════════════════════════════════════════════════════════════╣
║                                                            ║
║  Tiered song-narrative resolution with source citations.   ║
║                                                            ║
║  Quick Start:                                              ║
║    curl http://localhost%s/v1/liner/health
║    curl -X POST http://localhost%s/v1/liner/resolve \
║      -H "Content-Type: application/json" \
║      -d '{"title": "Diễm Xưa", "artist": "Khánh Ly"}'
║                                                            ║
║  Endpoints:                                                ║
║  ├── POST /v1/liner/resolve - one-shot resolution          ║
║  ├── GET  /v1/liner/resolve/stream - SSE stream            ║
║  ├── GET  /v1/liner/ws - WebSocket stream                  ║
║  ├── GET  /v1/liner/cache/stats - debug snapshot           ║
║  └── GET  /metrics - Prometheus                            ║
║                                                            ║
║  Press Ctrl+C to stop                                      ║
╚════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, addr, addr)
}

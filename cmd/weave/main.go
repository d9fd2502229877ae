// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command weave starts the ConceptWeave query-program API server.
//
// ConceptWeave executes small declarative programs against a knowledge
// graph, folding each query result into a session working graph.
//
// Usage:
//
//	go run ./cmd/weave
//	go run ./cmd/weave -port 7800 -gateway-url http://localhost:7801
//
// Example requests:
//
//	# Health check
//	curl http://localhost:7800/health
//
//	# Validate a program
//	curl -X POST http://localhost:7800/v1/programs/validate \
//	  -H "Content-Type: application/json" \
//	  -d '{"version":1,"statements":[{"op":"+","operation":{"type":"cypher","query":"MATCH (n:Concept) RETURN n","limit":50}}]}'
//
//	# Run a saved program
//	curl -X POST http://localhost:7800/v1/programs/run \
//	  -H "Content-Type: application/json" \
//	  -d '{"program_id": "<id>"}'
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/conceptweave/pkg/logging"
	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
	"github.com/AleutianAI/conceptweave/services/queryprog/gateway"
	"github.com/AleutianAI/conceptweave/services/queryprog/observability"
	"github.com/AleutianAI/conceptweave/services/queryprog/replay"
	"github.com/AleutianAI/conceptweave/services/queryprog/routes"
	storage "github.com/AleutianAI/conceptweave/services/queryprog/storage/badger"
	"github.com/AleutianAI/conceptweave/services/queryprog/telemetry"
)

func main() {
	port := flag.Int("port", 7800, "Port to listen on")
	gatewayURL := flag.String("gateway-url", "http://localhost:7801", "Knowledge-graph query gateway base URL")
	dataDir := flag.String("data-dir", "~/.conceptweave/data", "Directory for the program store")
	logDir := flag.String("log-dir", "", "Directory for log files (empty disables file logging)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(*logLevel),
		LogDir:  *logDir,
		Service: "weave",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	metrics := observability.InitMetrics()

	dataPath := logging.ExpandHome(*dataDir)
	store, err := storage.Open(storage.DefaultConfig(dataPath))
	if err != nil {
		logger.Error("failed to open program store", "path", dataPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client, err := gateway.NewClient(gateway.DefaultConfig(*gatewayURL))
	if err != nil {
		logger.Error("failed to create gateway client", "url", *gatewayURL, "error", err)
		os.Exit(1)
	}

	executor, err := exec.NewExecutor(client, logger.Logger)
	if err != nil {
		logger.Error("failed to create executor", "error", err)
		os.Exit(1)
	}
	replayer, err := replay.NewReplayer(executor, logger.Logger)
	if err != nil {
		logger.Error("failed to create replayer", "error", err)
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	routes.SetupRoutes(router, store, executor, replayer, metrics)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down weave server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("starting weave server",
		"address", srv.Addr,
		"gateway_url", *gatewayURL,
		"data_dir", *dataDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/conceptweave/services/queryprog/exec"
	"github.com/AleutianAI/conceptweave/services/queryprog/handlers"
	"github.com/AleutianAI/conceptweave/services/queryprog/observability"
	"github.com/AleutianAI/conceptweave/services/queryprog/replay"
	storage "github.com/AleutianAI/conceptweave/services/queryprog/storage/badger"
	"github.com/AleutianAI/conceptweave/services/queryprog/telemetry"
)

// SetupRoutes wires the full HTTP surface onto the router.
func SetupRoutes(router *gin.Engine, store *storage.Store, executor *exec.Executor,
	replayer *replay.Replayer, metrics *observability.ExecutionMetrics) {

	handlers.RegisterValidations()
	router.Use(otelgin.Middleware("weave"))

	router.GET("/health", handlers.HealthCheck)

	metricsHandler := telemetry.MetricsHandler()
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		programs := v1.Group("/programs")
		{
			programs.POST("", handlers.CreateProgram(store))
			programs.GET("", handlers.ListPrograms(store))
			programs.GET("/:programId", handlers.GetProgram(store))
			programs.DELETE("/:programId", handlers.DeleteProgram(store))

			programs.POST("/validate", handlers.ValidateProgram())
			programs.POST("/compile", handlers.CompileBlocks())
			programs.POST("/run", handlers.ExecuteProgram(executor, store, metrics))
			programs.POST("/replay", handlers.ReplayProgram(replayer, store))
			programs.GET("/run/ws", handlers.StreamExecution(executor, store))
		}
	}
}

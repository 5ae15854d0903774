// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package router

import (
	"github.com/gin-gonic/gin"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/router/middleware"
)

// GroupRegister mounts a set of handlers on the shared /api/v1 group.
type GroupRegister func(group *gin.RouterGroup) error

var groupRegisters []GroupRegister

// RegisterGroup queues a handler group for the next InitRouter call.
// Packages register themselves from bootstrap before the server starts.
func RegisterGroup(group GroupRegister) {
	groupRegisters = append(groupRegisters, group)
}

// InitRouter builds the /api/v1 group with the middleware chain and mounts
// every registered handler group on it. Metrics, error handling and CORS
// are always on; request logging and tracing follow the configuration.
// CORS sits on the engine so preflights are answered even for requests
// that match no route.
func InitRouter(engine *gin.Engine, cfg *config.Config) error {
	engine.Use(middleware.CorsMiddleware())

	g := engine.Group("/api/v1")
	g.Use(middleware.HandleMetrics())

	if cfg.Middleware.IsLoggingEnabled() {
		log.Info("HTTP request logging middleware enabled")
		g.Use(middleware.HandleLogging())
	} else {
		log.Info("HTTP request logging middleware disabled")
	}

	g.Use(middleware.HandleErrors())

	if cfg.Middleware.IsTracingEnabled() {
		log.Info("Distributed tracing middleware enabled")
		g.Use(middleware.HandleTracing())
	} else {
		log.Info("Distributed tracing middleware disabled")
	}

	for _, group := range groupRegisters {
		if err := group(g); err != nil {
			return err
		}
	}
	return nil
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wildsight/antler/pkg/logger/log"
)

var (
	once     sync.Once
	engine   *gin.Engine
	engineMu sync.RWMutex

	registers   []func(g *gin.RouterGroup)
	registersMu sync.Mutex

	defaultGather prometheus.Gatherer = prometheus.DefaultGatherer
)

func init() {
	AddRegister(addMetrics)
}

// SetDefaultGather swaps the gatherer served by /metrics.
func SetDefaultGather(g prometheus.Gatherer) {
	defaultGather = g
}

func AddRegister(f func(g *gin.RouterGroup)) {
	registersMu.Lock()
	defer registersMu.Unlock()
	registers = append(registers, f)
}

// AddDefaultRegister mounts a GET route that renders method's result as
// JSON, or a 500 carrying the error.
func AddDefaultRegister(path string, method func() (interface{}, error)) {
	AddRegister(func(g *gin.RouterGroup) {
		g.GET(path, func(c *gin.Context) {
			data, err := method()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, data)
		})
	})
}

func addMetrics(g *gin.RouterGroup) {
	g.GET("/metrics", func(c *gin.Context) {
		// Resolve the gatherer per request so SetDefaultGather takes
		// effect even after routes are mounted.
		h := promhttp.HandlerFor(defaultGather, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		})
		h.ServeHTTP(c.Writer, c.Request)
	})
}

// InitHealthServer starts the sidecar health/metrics listener. Only the
// first call takes effect.
func InitHealthServer(port int) {
	once.Do(func() {
		engineMu.Lock()
		engine = gin.New()
		engine.Use(gin.Recovery())
		g := engine.Group("")
		registersMu.Lock()
		for _, register := range registers {
			register(g)
		}
		registersMu.Unlock()
		e := engine
		engineMu.Unlock()

		go func() {
			if err := e.Run(fmt.Sprintf(":%d", port)); err != nil {
				log.Errorf("Health server exited: %v", err)
			}
		}()
	})
}

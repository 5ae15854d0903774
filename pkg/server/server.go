// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/router"
	"github.com/wildsight/antler/pkg/utils/goroutineUtil"
)

func InitServer(ctx context.Context) error {
	return InitServerWithPreInitFunc(ctx, nil)
}

// InitServerWithPreInitFunc loads config, runs preInit (the pipeline
// bootstrap), mounts the API router and serves until ctx is cancelled or
// the listener fails. Cancellation drains in-flight requests before
// returning. The health/metrics sidecar listens on the API port + 1.
func InitServerWithPreInitFunc(ctx context.Context, preInit func(ctx context.Context, cfg *config.Config) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := log.InitGlobalLogger(cfg.Log.ToLogConfig()); err != nil {
		return errors.NewError().WithCode(errors.CodeInitializeError).WithMessage("Logger init error").WithError(err)
	}
	if preInit != nil {
		err := preInit(ctx, cfg)
		if err != nil {
			return errors.NewError().WithCode(errors.CodeInitializeError).WithMessage("PreInit Error").WithError(err)
		}
	}
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	err = router.InitRouter(ginEngine, cfg)
	if err != nil {
		return err
	}

	InitHealthServer(cfg.GetHttpPort() + 1)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.GetHttpPort()),
		Handler: ginEngine,
	}
	errCh := make(chan error, 1)
	goroutineUtil.RunGoroutineWithLog(func() {
		errCh <- srv.ListenAndServe()
	})
	log.Infof("Serving API on :%d", cfg.GetHttpPort())

	select {
	case err = <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

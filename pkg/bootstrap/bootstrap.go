// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package bootstrap assembles the pipeline: database, models, image
// storage, the dispatch queue, both worker pools, the background loops
// and the HTTP surface. Init runs as the server's pre-init hook;
// Shutdown drains everything after the HTTP listener closes.
package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/wildsight/antler/pkg/api"
	"github.com/wildsight/antler/pkg/backfill"
	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/detect"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/imagestore"
	"github.com/wildsight/antler/pkg/inference"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/queue"
	"github.com/wildsight/antler/pkg/reid"
	"github.com/wildsight/antler/pkg/router"
	"github.com/wildsight/antler/pkg/server"
	"github.com/wildsight/antler/pkg/sql"
	"github.com/wildsight/antler/pkg/trace"
)

const serviceName = "antler"

// Pipeline holds the running components so shutdown can walk them in
// reverse start order.
type Pipeline struct {
	db         *gorm.DB
	registry   *inference.ModelRegistry
	queue      *queue.DBQueue
	sweeper    *queue.Sweeper
	detect     *detect.Worker
	reid       *reid.Worker
	reassigner *backfill.Reassigner
	tracing    bool

	stopOnce sync.Once
}

var (
	activeMu sync.Mutex
	active   *Pipeline
)

// Init wires and starts the pipeline. It runs before the API router is
// mounted, so the handlers it registers are picked up by InitRouter.
func Init(ctx context.Context, cfg *config.Config) error {
	p, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	p.start(ctx, cfg)

	activeMu.Lock()
	active = p
	activeMu.Unlock()
	return nil
}

// Shutdown drains the active pipeline: worker pools first so nothing new
// is claimed, then the loops, models, tracer and finally the database.
// Safe without a prior Init and safe to call twice.
func Shutdown() {
	activeMu.Lock()
	p := active
	activeMu.Unlock()
	if p != nil {
		p.stop()
	}
}

func build(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	db, err := sql.InitDefault(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := probePgvector(ctx, db); err != nil {
		return nil, err
	}

	registry, err := inference.NewModelRegistry(cfg.Inference, cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	if err := registry.Warm(); err != nil {
		return nil, err
	}

	source, err := imagestore.NewSource(cfg.Storage)
	if err != nil {
		return nil, err
	}

	facade := database.GetFacade()
	q := queue.NewDBQueue(facade.GetQueueTask(), cfg.Queue, cfg.Pipeline)

	p := &Pipeline{
		db:       db,
		registry: registry,
		queue:    q,
		sweeper:  queue.NewSweeper(facade.GetQueueTask(), cfg.Queue),
		detect:   detect.NewWorker(q, facade, source, registry, cfg.Pipeline, cfg.Queue),
		reid:     reid.NewWorker(q, facade, source, registry, cfg.Pipeline, cfg.Queue),
	}
	if cfg.Backfill.ReassignEnabled {
		runner := backfill.NewRunner(facade, q, backfill.NewTracker(), source, registry, cfg.Pipeline, cfg.Backfill)
		p.reassigner = backfill.NewReassigner(runner, cfg.Backfill)
	}

	router.RegisterGroup(api.NewHandlers(facade, q).RegisterRouter)
	server.AddDefaultRegister("/readyz", p.readiness)
	return p, nil
}

func (p *Pipeline) start(ctx context.Context, cfg *config.Config) {
	if cfg.Trace.Enabled {
		opts := trace.TraceOptions{
			Mode:               trace.TraceMode(cfg.Trace.GetMode()),
			SamplingRatio:      cfg.Trace.GetSamplingRatio(),
			ErrorSamplingRatio: cfg.Trace.GetErrorSamplingRatio(),
		}
		if err := trace.InitTracer(serviceName, cfg.Trace.Endpoint, opts); err != nil {
			// degrade to no tracing rather than hold the pipeline down
			log.Errorf("init tracer: %v", err)
		} else {
			p.tracing = true
		}
	}

	// The sweeper goes first so reservations orphaned by a previous
	// process are pending again before the pools start polling.
	p.sweeper.Start(ctx)
	p.detect.Start(ctx)
	p.reid.Start(ctx)
	if p.reassigner != nil {
		p.reassigner.Start(ctx)
	}
	log.Infof("pipeline started: detect=%d reid=%d reassign=%v",
		cfg.Pipeline.GetDetectConcurrency(), cfg.Pipeline.GetReidConcurrency(), p.reassigner != nil)
}

func (p *Pipeline) stop() {
	p.stopOnce.Do(func() {
		p.detect.Stop()
		p.reid.Stop()
		if p.reassigner != nil {
			p.reassigner.Stop()
		}
		p.sweeper.Stop()
		p.registry.Close()
		if p.tracing {
			if err := trace.CloseTracer(); err != nil {
				log.Errorf("close tracer: %v", err)
			}
		}
		if sqlDB, err := p.db.DB(); err == nil {
			if cErr := sqlDB.Close(); cErr != nil {
				log.Errorf("close database: %v", cErr)
			}
		}
		log.Info("pipeline stopped")
	})
}

// readiness reports whether the service can take traffic. A live database
// round-trip is the one dependency every request path shares.
func (p *Pipeline) readiness() (interface{}, error) {
	sqlDB, err := p.db.DB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"status": "ready"}, nil
}

// probePgvector fails startup when the vector extension is missing. Every
// profile operation needs it; the first queue item is the wrong place to
// find out.
func probePgvector(ctx context.Context, db *gorm.DB) error {
	var version string
	err := db.WithContext(ctx).
		Raw("SELECT extversion FROM pg_extension WHERE extname = 'vector'").
		Scan(&version).Error
	if err != nil {
		return errors.Wrap(err, "probe pgvector extension")
	}
	if version == "" {
		return errors.Wrap(antlererrors.ErrFatal, "pgvector extension is not installed, run antler-migrate first")
	}
	log.Infof("pgvector %s is installed", version)
	return nil
}

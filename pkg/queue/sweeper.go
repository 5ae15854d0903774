// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package queue

import (
	"context"
	"time"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/utils/goroutineUtil"
)

// Sweeper owns the two background maintenance loops of the DB-backed
// queue: reclaiming expired reservations and trimming old completed rows.
// Neither loop is on the hot path; a missed tick only delays redelivery.
type Sweeper struct {
	facade database.QueueTaskFacadeInterface
	conf   config.QueueSettings
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a Sweeper over the given facade
func NewSweeper(facade database.QueueTaskFacadeInterface, conf config.QueueSettings) *Sweeper {
	return &Sweeper{
		facade: facade,
		conf:   conf,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the maintenance loops in a goroutine
func (s *Sweeper) Start(ctx context.Context) {
	goroutineUtil.RunGoroutineWithLog(func() { s.run(ctx) })
}

// Stop stops the loops and waits for them to drain
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	sweepTicker := time.NewTicker(s.conf.GetSweepInterval())
	defer sweepTicker.Stop()
	cleanupTicker := time.NewTicker(s.conf.GetCleanupInterval())
	defer cleanupTicker.Stop()

	// Reclaim anything orphaned by a previous process before serving.
	s.sweepTimeouts(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-sweepTicker.C:
			s.sweepTimeouts(ctx)
		case <-cleanupTicker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *Sweeper) sweepTimeouts(ctx context.Context) {
	count, err := s.facade.HandleTimeouts(ctx)
	if err != nil {
		log.Errorf("queue sweep: handling timeouts: %v", err)
		return
	}
	if count > 0 {
		log.Infof("queue sweep: reclaimed %d expired reservations", count)
		timedOutTotal.Add(float64(count))
	}
}

func (s *Sweeper) cleanup(ctx context.Context) {
	count, err := s.facade.Cleanup(ctx, s.conf.GetRetention())
	if err != nil {
		log.Errorf("queue sweep: cleanup: %v", err)
		return
	}
	if count > 0 {
		log.Infof("queue sweep: removed %d completed items past retention", count)
	}
}

// RunOnce runs one timeout sweep immediately (admin path)
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.facade.HandleTimeouts(ctx)
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package backfill

import (
	"context"
	"time"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/utils/goroutineUtil"
)

// Reassigner periodically re-queues unassigned detections so profile
// assignment self-heals without operator action. It is the only scan
// that runs inside the service; the rest stay one-shot admin commands.
type Reassigner struct {
	runner   *Runner
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReassigner creates a Reassigner driving the given runner
func NewReassigner(runner *Runner, conf config.BackfillSettings) *Reassigner {
	return &Reassigner{
		runner:   runner,
		interval: conf.GetReassignInterval(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the loop in a goroutine
func (r *Reassigner) Start(ctx context.Context) {
	goroutineUtil.RunGoroutineWithLog(func() { r.run(ctx) })
}

// Stop stops the loop and waits for it to drain
func (r *Reassigner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reassigner) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Pick up detections stranded by a previous process before waiting
	// out the first interval.
	r.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reassigner) pass(ctx context.Context) {
	job, err := r.runner.ReassignUnassigned(ctx, false)
	if err != nil {
		// an operator-driven reassign already running is not a fault;
		// this tick simply yields to it
		log.Warnf("reassign loop: %v", err)
		return
	}
	if job.Processed > 0 || job.Failed > 0 {
		log.Infof("reassign loop: queued %d unassigned detections (skipped %d, failed %d)",
			job.Processed, job.Skipped, job.Failed)
	}
}

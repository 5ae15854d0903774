// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/inference"
)

func TestReassignerRunsInitialPassAndStops(t *testing.T) {
	r := newRig(t, &inference.StaticEngine{}, nil, 10)
	r.seedImage(t, "img-1", model.ImageStatusCompleted, scanBase)
	r.seedDetection(t, "det-1", "img-1", 0.9, nil)

	loop := NewReassigner(r.runner, config.BackfillSettings{ReassignIntervalMinutes: 60})
	loop.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(r.queue.Items(model.QueueReid, model.TaskStatusPending)) == 1
	}, time.Second, 5*time.Millisecond, "the loop scans once before the first tick")

	// Stop must not wait out the 60 minute ticker
	loop.Stop()

	assert.Equal(t, []string{"det-1"}, r.queue.Items(model.QueueReid, model.TaskStatusPending))
	assert.False(t, r.tracker.HasActive(KindReassign))
	jobs, total := r.tracker.List(1, 10)
	require.Equal(t, 1, total)
	assert.Equal(t, KindReassign, jobs[0].Kind)
	assert.Equal(t, JobStatusCompleted, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Processed)
}

func TestReassignerYieldsToRunningJob(t *testing.T) {
	r := newRig(t, &inference.StaticEngine{}, nil, 10)
	r.seedImage(t, "img-1", model.ImageStatusCompleted, scanBase)
	r.seedDetection(t, "det-1", "img-1", 0.9, nil)

	// an operator-driven reassign holds the kind
	_, err := r.tracker.Begin(KindReassign, false)
	require.NoError(t, err)

	loop := NewReassigner(r.runner, config.BackfillSettings{})
	loop.pass(context.Background())

	assert.Empty(t, r.queue.Items(model.QueueReid, model.TaskStatusPending),
		"a held kind makes the tick a no-op")
}

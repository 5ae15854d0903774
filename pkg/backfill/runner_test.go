// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package backfill

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/imagestore"
	"github.com/wildsight/antler/pkg/inference"
	"github.com/wildsight/antler/pkg/queue"
)

var scanBase = time.Date(2026, 4, 2, 5, 45, 0, 0, time.UTC)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

type rig struct {
	runner  *Runner
	tracker *Tracker
	queue   *queue.MemoryQueue
	store   *database.MemoryFacade
	source  *imagestore.MemorySource
}

// newRig wires a runner over the in-memory stores. The factory answers
// every role with eng unless aux pairs a second engine onto the aux role.
func newRig(t *testing.T, eng *inference.StaticEngine, aux *inference.StaticEngine, batch int) *rig {
	t.Helper()
	auxCount := 0
	if aux != nil {
		auxCount = 1
	}
	registry := inference.NewModelRegistryWithFactory(func(role string) (inference.Engine, error) {
		if aux != nil && role == inference.AuxRole(0) {
			return aux, nil
		}
		return eng, nil
	}, inference.NewDeviceSemaphore(2), auxCount)

	store := database.NewMemoryFacade()
	q := queue.NewMemoryQueue(3)
	src := imagestore.NewMemorySource(nil)
	tracker := NewTracker()
	runner := NewRunner(store, q, tracker, src, registry,
		config.PipelineSettings{}, config.BackfillSettings{BatchSize: batch})
	return &rig{runner: runner, tracker: tracker, queue: q, store: store, source: src}
}

func (r *rig) seedImage(t *testing.T, id, status string, ts time.Time) *model.Image {
	t.Helper()
	img := &model.Image{
		ID:               id,
		LocationID:       "loc-1",
		Path:             id + ".jpg",
		Filename:         id + ".jpg",
		Timestamp:        ts,
		ProcessingStatus: status,
		CreatedAt:        ts,
	}
	require.NoError(t, r.store.GetImage().Create(context.Background(), img))
	return img
}

func (r *rig) seedDetection(t *testing.T, id, imageID string, conf float64, deerID *string) *model.Detection {
	t.Helper()
	det := &model.Detection{
		ID:      id,
		ImageID: imageID,
		BboxX:   10, BboxY: 10, BboxW: 40, BboxH: 40,
		Confidence: conf,
		Class:      model.ClassDoe,
		DeerID:     deerID,
		CreatedAt:  scanBase,
	}
	require.NoError(t, r.store.GetDetection().BulkInsert(context.Background(), []*model.Detection{det}))
	return det
}

func (r *rig) seedProfile(t *testing.T, id string, embedding []float32, createdAt time.Time) *model.Deer {
	t.Helper()
	deer := &model.Deer{
		ID:               id,
		Sex:              model.SexDoe,
		Embedding:        pgvector.NewVector(embedding),
		EmbeddingVersion: "v1",
		FirstSeen:        createdAt,
		LastSeen:         createdAt,
		SightingCount:    1,
		CreatedAt:        createdAt,
	}
	require.NoError(t, r.store.GetDeer().InsertProfile(context.Background(), deer))
	return deer
}

func TestBackfillPendingQueuesMissing(t *testing.T) {
	r := newRig(t, &inference.StaticEngine{}, nil, 2)
	ctx := context.Background()

	r.seedImage(t, "img-1", model.ImageStatusPending, scanBase)
	r.seedImage(t, "img-2", model.ImageStatusPending, scanBase.Add(time.Minute))
	r.seedImage(t, "img-3", model.ImageStatusPending, scanBase.Add(2*time.Minute))
	r.seedImage(t, "img-4", model.ImageStatusCompleted, scanBase.Add(3*time.Minute))

	// img-2 already has a live detect task; the scan must not double it
	require.NoError(t, r.queue.Enqueue(ctx, model.QueueDetect, "img-2"))

	job, err := r.runner.BackfillPending(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 2, job.Processed)
	assert.Equal(t, 1, job.Skipped)
	assert.Zero(t, job.Failed)

	pending := r.queue.Items(model.QueueDetect, model.TaskStatusPending)
	assert.ElementsMatch(t, []string{"img-1", "img-2", "img-3"}, pending)
	assert.Len(t, pending, 3, "one task per image, the live one untouched")
}

func TestBackfillPendingDryRun(t *testing.T) {
	r := newRig(t, &inference.StaticEngine{}, nil, 10)
	ctx := context.Background()

	r.seedImage(t, "img-1", model.ImageStatusPending, scanBase)
	r.seedImage(t, "img-2", model.ImageStatusPending, scanBase.Add(time.Minute))

	job, err := r.runner.BackfillPending(ctx, true)
	require.NoError(t, err)
	assert.True(t, job.DryRun)
	assert.Equal(t, 2, job.Processed)
	assert.Empty(t, r.queue.Items(model.QueueDetect, model.TaskStatusPending))
}

func TestBackfillPendingRejectsOverlap(t *testing.T) {
	r := newRig(t, &inference.StaticEngine{}, nil, 10)

	_, err := r.tracker.Begin(KindBackfill, false)
	require.NoError(t, err)

	job, err := r.runner.BackfillPending(context.Background(), false)
	require.Error(t, err)
	assert.Nil(t, job)
	assert.Contains(t, err.Error(), "already running")
}

func TestBackfillPendingStopsOnCancel(t *testing.T) {
	r := newRig(t, &inference.StaticEngine{}, nil, 10)
	r.seedImage(t, "img-1", model.ImageStatusPending, scanBase)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := r.runner.BackfillPending(ctx, false)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, job)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)
}

func TestReassignUnassignedQueuesEligible(t *testing.T) {
	r := newRig(t, &inference.StaticEngine{}, nil, 10)
	ctx := context.Background()

	r.seedImage(t, "img-1", model.ImageStatusCompleted, scanBase)
	r.seedImage(t, "img-2", model.ImageStatusPending, scanBase.Add(time.Minute))

	deerID := "deer-1"
	r.seedDetection(t, "det-1", "img-1", 0.9, nil)
	r.seedDetection(t, "det-2", "img-1", 0.8, &deerID)
	r.seedDetection(t, "det-3", "img-2", 0.7, nil)
	r.seedDetection(t, "det-4", "img-1", 0.6, nil)

	// det-4 is already waiting for a re-id worker
	require.NoError(t, r.queue.Enqueue(ctx, model.QueueReid, "det-4"))

	job, err := r.runner.ReassignUnassigned(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Total, "assigned rows and rows on unfinished images are out of scope")
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, 1, job.Skipped)

	pending := r.queue.Items(model.QueueReid, model.TaskStatusPending)
	assert.ElementsMatch(t, []string{"det-1", "det-4"}, pending)
}

func TestRevertStaleProcessing(t *testing.T) {
	// batch 1 forces paging across a scan whose rows leave the status
	r := newRig(t, &inference.StaticEngine{}, nil, 1)
	ctx := context.Background()

	r.seedImage(t, "img-1", model.ImageStatusProcessing, scanBase)
	r.seedImage(t, "img-2", model.ImageStatusProcessing, scanBase.Add(time.Minute))
	r.seedImage(t, "img-3", model.ImageStatusFailed, scanBase.Add(2*time.Minute))

	// img-2's worker is still alive; only img-1 is stale
	require.NoError(t, r.queue.Enqueue(ctx, model.QueueDetect, "img-2"))

	job, err := r.runner.RevertStaleProcessing(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, 1, job.Skipped)

	img1, err := r.store.GetImage().Get(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, model.ImageStatusPending, img1.ProcessingStatus)

	img2, err := r.store.GetImage().Get(ctx, "img-2")
	require.NoError(t, err)
	assert.Equal(t, model.ImageStatusProcessing, img2.ProcessingStatus, "an owned image is left alone")

	pending := r.queue.Items(model.QueueDetect, model.TaskStatusPending)
	assert.ElementsMatch(t, []string{"img-1", "img-2"}, pending)
}

func TestReEmbedRewritesVectorsFromBestSighting(t *testing.T) {
	eng := &inference.StaticEngine{FixedEmbedding: []float32{3, 4, 0, 0}, ModelVersion: "resnet-v2"}
	r := newRig(t, eng, nil, 10)
	ctx := context.Background()

	deer := r.seedProfile(t, "deer-1", []float32{0, 1, 0, 0}, scanBase)
	alt := pgvector.NewVector([]float32{0, 0, 1, 0})
	require.NoError(t, r.store.GetDeer().UpdateProfile(ctx, deer.ID, map[string]interface{}{
		"embedding_alt": alt,
	}))

	// only the highest-confidence sighting has decodable bytes, so picking
	// any other one would fail the run
	r.seedImage(t, "img-low", model.ImageStatusCompleted, scanBase)
	r.seedImage(t, "img-best", model.ImageStatusCompleted, scanBase.Add(time.Minute))
	r.source.Put("img-low.jpg", []byte("not a jpeg"))
	r.source.Put("img-best.jpg", testJPEG(t, 100, 100))
	r.seedDetection(t, "det-low", "img-low", 0.55, &deer.ID)
	r.seedDetection(t, "det-best", "img-best", 0.93, &deer.ID)

	job, err := r.runner.ReEmbed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.Total)
	assert.Equal(t, 1, job.Processed)
	assert.Zero(t, job.Failed)
	assert.Equal(t, int64(1), eng.EmbedCalls())

	got, err := r.store.GetDeer().Get(ctx, deer.ID)
	require.NoError(t, err)
	assert.Equal(t, "resnet-v2", got.EmbeddingVersion)
	stored := got.Embedding.Slice()
	assert.InDelta(t, 0.6, stored[0], 1e-6)
	assert.InDelta(t, 0.8, stored[1], 1e-6)
	assert.Nil(t, got.EmbeddingAlt, "a single-extractor ensemble clears the alternate vector")
}

func TestReEmbedTwoRoleEnsembleWritesAlternate(t *testing.T) {
	eng := &inference.StaticEngine{FixedEmbedding: []float32{3, 4, 0, 0}, ModelVersion: "resnet-v2"}
	aux := &inference.StaticEngine{FixedEmbedding: []float32{0, 0, 4, 3}, ModelVersion: "aux-v1"}
	r := newRig(t, eng, aux, 10)
	ctx := context.Background()

	deer := r.seedProfile(t, "deer-1", []float32{0, 1, 0, 0}, scanBase)
	r.seedImage(t, "img-1", model.ImageStatusCompleted, scanBase)
	r.source.Put("img-1.jpg", testJPEG(t, 100, 100))
	r.seedDetection(t, "det-1", "img-1", 0.9, &deer.ID)

	job, err := r.runner.ReEmbed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, int64(1), eng.EmbedCalls())
	assert.Equal(t, int64(1), aux.EmbedCalls())

	got, err := r.store.GetDeer().Get(ctx, deer.ID)
	require.NoError(t, err)
	assert.Equal(t, "resnet-v2", got.EmbeddingVersion, "the primary extractor stamps the version")

	primary := got.Embedding.Slice()
	assert.InDelta(t, 0.6, primary[0], 1e-6)
	assert.InDelta(t, 0.8, primary[1], 1e-6)

	require.NotNil(t, got.EmbeddingAlt)
	alt := got.EmbeddingAlt.Slice()
	assert.InDelta(t, 0.8, alt[2], 1e-6)
	assert.InDelta(t, 0.6, alt[3], 1e-6)
}

func TestReEmbedSkipsAndCountsFailures(t *testing.T) {
	eng := &inference.StaticEngine{FixedEmbedding: []float32{1, 0, 0, 0}}
	r := newRig(t, eng, nil, 10)
	ctx := context.Background()

	// deer-1 has no sightings at all, deer-2's only image bytes are gone
	r.seedProfile(t, "deer-1", []float32{0, 1, 0, 0}, scanBase)
	deer2 := r.seedProfile(t, "deer-2", []float32{1, 0, 0, 0}, scanBase.Add(time.Minute))
	r.seedImage(t, "img-1", model.ImageStatusCompleted, scanBase)
	r.seedDetection(t, "det-1", "img-1", 0.9, &deer2.ID)

	job, err := r.runner.ReEmbed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status, "per-profile failures never abort the pass")
	assert.Equal(t, 2, job.Total)
	assert.Zero(t, job.Processed)
	assert.Equal(t, 1, job.Skipped)
	assert.Equal(t, 1, job.Failed)

	got, err := r.store.GetDeer().Get(ctx, "deer-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got.EmbeddingVersion, "untouchable profiles keep their vectors")
}

func TestReEmbedDryRunComputesWithoutWriting(t *testing.T) {
	eng := &inference.StaticEngine{FixedEmbedding: []float32{3, 4, 0, 0}, ModelVersion: "resnet-v2"}
	r := newRig(t, eng, nil, 10)
	ctx := context.Background()

	deer := r.seedProfile(t, "deer-1", []float32{0, 1, 0, 0}, scanBase)
	r.seedImage(t, "img-1", model.ImageStatusCompleted, scanBase)
	r.source.Put("img-1.jpg", testJPEG(t, 100, 100))
	r.seedDetection(t, "det-1", "img-1", 0.9, &deer.ID)

	job, err := r.runner.ReEmbed(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, int64(1), eng.EmbedCalls(), "a dry run still proves the extractor works")

	got, err := r.store.GetDeer().Get(ctx, deer.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.EmbeddingVersion)
	assert.Equal(t, []float32{0, 1, 0, 0}, got.Embedding.Slice())
}

func TestCompactProfilesDeletesOrphans(t *testing.T) {
	// batch 1 forces paging across a scan whose rows get deleted
	r := newRig(t, &inference.StaticEngine{}, nil, 1)
	ctx := context.Background()

	keep := r.seedProfile(t, "deer-keep", []float32{1, 0, 0, 0}, scanBase)
	r.seedProfile(t, "deer-orphan-1", []float32{0, 1, 0, 0}, scanBase.Add(time.Minute))
	r.seedProfile(t, "deer-orphan-2", []float32{0, 0, 1, 0}, scanBase.Add(2*time.Minute))

	r.seedImage(t, "img-1", model.ImageStatusCompleted, scanBase)
	r.seedDetection(t, "det-1", "img-1", 0.9, &keep.ID)

	dry, err := r.runner.CompactProfiles(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Processed)
	count, err := r.store.GetDeer().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "a dry run deletes nothing")

	job, err := r.runner.CompactProfiles(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, 2, job.Processed)
	assert.Equal(t, 1, job.Skipped)

	got, err := r.store.GetDeer().Get(ctx, keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	for _, id := range []string{"deer-orphan-1", "deer-orphan-2"} {
		gone, err := r.store.GetDeer().Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, gone)
	}
}

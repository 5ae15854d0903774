// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package detect turns queued image ids into detection rows. Each worker
// claims an image with a status CAS, runs the detector, applies the
// operator confidence cut and IoU dedup, persists all boxes with the
// completed flip in one transaction, and feeds eligible boxes to the
// re-id queue after commit.
package detect

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/database/model"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/imagestore"
	"github.com/wildsight/antler/pkg/inference"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/queue"
	"github.com/wildsight/antler/pkg/trace"
)

// Worker is the detection stage consumer pool.
type Worker struct {
	queue    queue.Queue
	facade   database.FacadeInterface
	source   imagestore.Source
	registry *inference.ModelRegistry
	pipeline config.PipelineSettings

	consumer *queue.Consumer
}

// NewWorker creates the pool; Start sizes it from detect_concurrency.
func NewWorker(q queue.Queue, facade database.FacadeInterface, source imagestore.Source,
	registry *inference.ModelRegistry, pipeline config.PipelineSettings, queueConf config.QueueSettings) *Worker {
	w := &Worker{
		queue:    q,
		facade:   facade,
		source:   source,
		registry: registry,
		pipeline: pipeline,
	}
	w.consumer = queue.NewConsumer(q, model.QueueDetect,
		pipeline.GetDetectConcurrency(), queueConf.GetPollInterval(), w.handle)
	return w
}

// Start launches the worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	w.consumer.Start(ctx)
}

// Stop drains the pool and blocks until every in-flight image finishes.
func (w *Worker) Stop() {
	w.consumer.Stop()
}

// handle runs one delivery and maps the failure kind onto the queue
// disposition: corrupt input parks the image and acks, a lost status race
// acks silently, everything else returns the claim and nacks.
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	span, ctx := trace.StartSpanFromContext(ctx, "detect.Process")
	defer trace.FinishSpan(span)
	span.SetAttributes(
		attribute.String("image.id", d.ItemID),
		attribute.Int("delivery.attempt", d.RetryCount+1),
	)

	start := time.Now()
	err := w.Process(ctx, d.ItemID)
	processingSeconds.Observe(time.Since(start).Seconds())

	if err == nil {
		imagesProcessedTotal.Inc()
		w.ack(ctx, d)
		return
	}

	if ctx.Err() != nil {
		// shutdown interrupted the work; put the claim and the delivery
		// back without charging the retry budget
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.revertClaim(rctx, d.ItemID)
		if rErr := w.queue.Release(rctx, d); rErr != nil {
			log.Errorf("detect: release task %s: %v", d.TaskID, rErr)
		}
		return
	}

	kind := antlererrors.Classify(err)
	failuresTotal.WithLabelValues(kind.String()).Inc()

	switch kind {
	case antlererrors.KindInputCorrupt:
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		log.Warnf("detect: image %s has unusable bytes: %v", d.ItemID, err)
		if mErr := w.facade.GetImage().MarkFailed(ctx, d.ItemID, antlererrors.Summary(err)); mErr != nil {
			log.Errorf("detect: mark image %s failed: %v", d.ItemID, mErr)
		}
		w.ack(ctx, d)

	case antlererrors.KindLogicViolation:
		// another worker owns the image; this delivery is already done
		w.ack(ctx, d)

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		log.Warnf("detect: image %s attempt %d failed (%s): %v", d.ItemID, d.RetryCount+1, kind, err)
		w.revertClaim(ctx, d.ItemID)
		if nErr := w.queue.Nack(ctx, d, antlererrors.Summary(err)); nErr != nil {
			log.Errorf("detect: nack task %s: %v", d.TaskID, nErr)
		}
	}
}

func (w *Worker) ack(ctx context.Context, d *queue.Delivery) {
	if err := w.queue.Ack(ctx, d); err != nil {
		log.Errorf("detect: ack task %s: %v", d.TaskID, err)
	}
}

// revertClaim undoes the pending→processing claim ahead of a nack so the
// retry finds a claimable row. A conflict means the claim never happened
// or someone else already moved the image on; both are fine.
func (w *Worker) revertClaim(ctx context.Context, imageID string) {
	err := w.facade.GetImage().UpsertImageStatus(ctx, imageID, model.ImageStatusProcessing, model.ImageStatusPending)
	if err != nil && !errors.Is(err, antlererrors.ErrStatusConflict) {
		log.Errorf("detect: revert claim on image %s: %v", imageID, err)
	}
}

// Process runs the detection stage for one image id. The error kind drives
// the caller's queue disposition.
func (w *Worker) Process(ctx context.Context, imageID string) error {
	ctx, cancel := context.WithTimeout(ctx, w.pipeline.GetDetectDeadline())
	defer cancel()

	loadStart := time.Now()
	img, err := w.facade.GetImage().Get(ctx, imageID)
	if err != nil {
		return errors.Wrapf(err, "load image %s", imageID)
	}
	if img == nil {
		return errors.Wrapf(antlererrors.ErrStatusConflict, "image %s has no row", imageID)
	}
	if img.ProcessingStatus != model.ImageStatusPending {
		return errors.Wrapf(antlererrors.ErrStatusConflict, "image %s is %s", imageID, img.ProcessingStatus)
	}

	if err := w.facade.GetImage().UpsertImageStatus(ctx, imageID, model.ImageStatusPending, model.ImageStatusProcessing); err != nil {
		return errors.Wrapf(err, "claim image %s", imageID)
	}

	data, err := w.source.Fetch(ctx, img.Path)
	if err != nil {
		return errors.Wrapf(err, "fetch bytes for image %s", imageID)
	}
	stageSeconds.WithLabelValues("load").Observe(time.Since(loadStart).Seconds())

	eng, err := w.registry.Engine(inference.RoleDetector)
	if err != nil {
		return err
	}
	inferStart := time.Now()
	raw, err := eng.Detect(ctx, data)
	stageSeconds.WithLabelValues("detect").Observe(time.Since(inferStart).Seconds())
	if err != nil {
		return errors.Wrapf(err, "detect on image %s", imageID)
	}

	rows := w.buildRows(img, raw)

	// all boxes and the completed flip commit as one unit; a failed flip
	// rolls the boxes back too
	commitStart := time.Now()
	err = w.facade.Transaction(ctx, func(tx database.FacadeInterface) error {
		if len(rows) > 0 {
			if err := tx.GetDetection().BulkInsert(ctx, rows); err != nil {
				return err
			}
		}
		return tx.GetImage().UpsertImageStatus(ctx, imageID, model.ImageStatusProcessing, model.ImageStatusCompleted)
	})
	stageSeconds.WithLabelValues("commit").Observe(time.Since(commitStart).Seconds())
	if err != nil {
		return errors.Wrapf(err, "persist detections for image %s", imageID)
	}

	// post-commit: feed re-id. A lost enqueue here is repaired by the
	// reassigner loop, never by retrying the completed image.
	enqueued := 0
	duplicates := 0
	for _, r := range rows {
		if r.IsDuplicate {
			duplicates++
		}
		if !r.EligibleForReid() {
			continue
		}
		if qErr := w.queue.Enqueue(ctx, model.QueueReid, r.ID); qErr != nil {
			log.Errorf("detect: enqueue reid for detection %s: %v", r.ID, qErr)
			continue
		}
		enqueued++
	}

	detectionsTotal.Add(float64(len(rows)))
	duplicatesMarkedTotal.Add(float64(duplicates))
	log.Infof("detect: image %s completed, %d boxes, %d to reid", imageID, len(rows), enqueued)
	return nil
}

// buildRows applies the operator confidence cut (boxes at exactly the
// threshold stay), folds non-deer classes into `other` or drops them, and
// marks IoU duplicates. Duplicates are persisted for audit.
func (w *Worker) buildRows(img *model.Image, raw []inference.Detection) []*model.Detection {
	tau := w.pipeline.GetDetectorConfidence()
	keep := make([]inference.Detection, 0, len(raw))
	for _, det := range raw {
		if det.Confidence < tau {
			continue
		}
		if !model.IsDeerClass(det.Class) {
			if !w.pipeline.IsRecordNonDeer() {
				continue
			}
			det.Class = model.ClassOther
		}
		keep = append(keep, det)
	}

	dup := markDuplicates(keep, w.pipeline.GetIouDedupThreshold())

	rows := make([]*model.Detection, len(keep))
	for i, det := range keep {
		rows[i] = &model.Detection{
			ID:          uuid.NewString(),
			ImageID:     img.ID,
			BboxX:       det.Box.X,
			BboxY:       det.Box.Y,
			BboxW:       det.Box.W,
			BboxH:       det.Box.H,
			Confidence:  det.Confidence,
			Class:       det.Class,
			IsDuplicate: dup[i],
		}
	}
	return rows
}

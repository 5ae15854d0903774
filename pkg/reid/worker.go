// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package reid attaches detections to deer profiles. For every eligible
// detection it first asks the burst window whether a sibling already
// settled on a profile; otherwise it crops the animal, embeds the crop
// with the configured extractor ensemble, searches the profile store for
// the nearest candidates and either folds the detection into the best
// match or opens a new profile.
package reid

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
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
	"github.com/wildsight/antler/pkg/vectormath"
)

// maxScoreRetries bounds the search/lock/re-score loop when concurrent
// workers keep moving the profile we picked.
const maxScoreRetries = 3

// errScoreDrifted reports that the locked profile no longer clears the
// match threshold; the caller re-runs the candidate search.
var errScoreDrifted = errors.New("profile drifted below threshold under lock")

// Worker consumes the re-identification queue.
type Worker struct {
	queue    queue.Queue
	facade   database.FacadeInterface
	source   imagestore.Source
	registry *inference.ModelRegistry
	pipeline config.PipelineSettings
	consumer *queue.Consumer
}

// NewWorker wires a re-identification pool. Concurrency can run well past
// the detect pool: most of the work is database traffic and the device
// semaphore already caps model calls.
func NewWorker(q queue.Queue, facade database.FacadeInterface, source imagestore.Source,
	registry *inference.ModelRegistry, pipeline config.PipelineSettings, queueConf config.QueueSettings) *Worker {
	w := &Worker{
		queue:    q,
		facade:   facade,
		source:   source,
		registry: registry,
		pipeline: pipeline,
	}
	w.consumer = queue.NewConsumer(q, model.QueueReid, pipeline.GetReidConcurrency(), queueConf.GetPollInterval(), w.handle)
	return w
}

// Start launches the consumer pool.
func (w *Worker) Start(ctx context.Context) {
	w.consumer.Start(ctx)
}

// Stop halts the pool and waits for in-flight detections to finish.
func (w *Worker) Stop() {
	w.consumer.Stop()
}

func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	span, ctx := trace.StartSpanFromContext(ctx, "reid.Process")
	defer trace.FinishSpan(span)
	span.SetAttributes(
		attribute.String("detection.id", d.ItemID),
		attribute.Int("delivery.attempt", d.RetryCount+1),
	)

	start := time.Now()
	err := w.Process(ctx, d.ItemID)
	processingSeconds.Observe(time.Since(start).Seconds())

	if err == nil {
		detectionsProcessedTotal.Inc()
		w.ack(ctx, d)
		return
	}

	if ctx.Err() != nil {
		// shutdown interrupted the work; hand the item back without
		// charging the retry budget
		w.release(d)
		return
	}

	kind := antlererrors.Classify(err)
	failuresTotal.WithLabelValues(kind.String()).Inc()

	switch kind {
	case antlererrors.KindInputCorrupt:
		// the stored bytes cannot feed the embedder; the detection stays
		// unassigned rather than burning the retry budget
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		log.Warnf("reid: detection %s has unusable input, leaving unassigned: %v", d.ItemID, err)
		w.ack(ctx, d)

	case antlererrors.KindLogicViolation:
		// already assigned, vanished, or otherwise settled; redelivery
		// has nothing left to do
		w.ack(ctx, d)

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		log.Warnf("reid: detection %s attempt %d failed (%s): %v", d.ItemID, d.RetryCount+1, kind, err)
		if nErr := w.queue.Nack(ctx, d, antlererrors.Summary(err)); nErr != nil {
			log.Errorf("reid: nack task %s: %v", d.TaskID, nErr)
		}
	}
}

func (w *Worker) ack(ctx context.Context, d *queue.Delivery) {
	if err := w.queue.Ack(ctx, d); err != nil {
		log.Errorf("reid: ack task %s: %v", d.TaskID, err)
	}
}

// release returns a delivery on shutdown. The pool context is already
// cancelled, so the call runs on its own short deadline.
func (w *Worker) release(d *queue.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Release(ctx, d); err != nil {
		log.Errorf("reid: release task %s: %v", d.TaskID, err)
	}
}

// Process re-identifies one detection. Idempotent: a detection that
// already carries a profile, or that is not re-id material at all, ends
// in a conflict error the handler acks without side effects.
func (w *Worker) Process(ctx context.Context, detectionID string) error {
	ctx, cancel := context.WithTimeout(ctx, w.pipeline.GetReidDeadline())
	defer cancel()

	loadStart := time.Now()
	det, err := w.facade.GetDetection().Get(ctx, detectionID)
	if err != nil {
		return errors.Wrapf(err, "load detection %s", detectionID)
	}
	if det == nil {
		return errors.Wrapf(antlererrors.ErrStatusConflict, "detection %s has no row", detectionID)
	}
	if det.DeerID != nil {
		return errors.Wrapf(antlererrors.ErrStatusConflict, "detection %s already assigned to %s", detectionID, *det.DeerID)
	}
	if !det.EligibleForReid() {
		return errors.Wrapf(antlererrors.ErrStatusConflict, "detection %s (class %s, duplicate=%v) is not re-id material",
			detectionID, det.Class, det.IsDuplicate)
	}

	img, err := w.facade.GetImage().Get(ctx, det.ImageID)
	if err != nil {
		return errors.Wrapf(err, "load image %s", det.ImageID)
	}
	if img == nil {
		return errors.Wrapf(antlererrors.ErrStatusConflict, "image %s vanished under detection %s", det.ImageID, detectionID)
	}
	stageSeconds.WithLabelValues("load").Observe(time.Since(loadStart).Seconds())

	// a burst sibling that already settled on a profile decides for us
	deerID, err := w.burstProfile(ctx, det, img)
	if err != nil {
		return err
	}
	if deerID != "" {
		if err := w.joinProfile(ctx, det, img, deerID); err != nil {
			return err
		}
		assignmentsTotal.WithLabelValues("burst").Inc()
		log.Infof("reid: detection %s joined burst profile %s", det.ID, deerID)
		return nil
	}

	embedStart := time.Now()
	queries, version, err := w.embedQueries(ctx, det, img)
	stageSeconds.WithLabelValues("embed").Observe(time.Since(embedStart).Seconds())
	if err != nil {
		return err
	}

	return w.assignOrCreate(ctx, det, img, queries, version)
}

// burstProfile looks for a sibling in the burst window that already
// carries a profile. Two animals can share a window, so a sibling whose
// class implies a different sex never decides for this detection.
func (w *Worker) burstProfile(ctx context.Context, det *model.Detection, img *model.Image) (string, error) {
	members, err := w.facade.GetDetection().BurstWindow(ctx, img.LocationID, img.Timestamp, w.pipeline.GetBurstWindow())
	if err != nil {
		return "", errors.Wrapf(err, "burst window for detection %s", det.ID)
	}
	want := model.DeriveSex(det.Class)
	for _, m := range members {
		if m.ID == det.ID || m.DeerID == nil {
			continue
		}
		have := model.DeriveSex(m.Class)
		if want != model.SexUnknown && have != model.SexUnknown && want != have {
			continue
		}
		return *m.DeerID, nil
	}
	return "", nil
}

// joinProfile attaches the detection to a profile its burst already
// discovered, skipping the embedding entirely.
func (w *Worker) joinProfile(ctx context.Context, det *model.Detection, img *model.Image, deerID string) error {
	commitStart := time.Now()
	defer func() {
		stageSeconds.WithLabelValues("commit").Observe(time.Since(commitStart).Seconds())
	}()

	return w.facade.Transaction(ctx, func(tx database.FacadeInterface) error {
		locked, err := tx.GetDeer().LockProfileForUpdate(ctx, deerID)
		if err != nil {
			return errors.Wrapf(err, "lock profile %s", deerID)
		}
		if locked == nil {
			return errors.Wrapf(antlererrors.ErrProfileContended, "profile %s vanished under detection %s", deerID, det.ID)
		}
		if err := tx.GetDetection().AssignDeer(ctx, det.ID, deerID); err != nil {
			return err
		}
		if err := tx.GetDeer().RecordSighting(ctx, deerID, img.Timestamp); err != nil {
			return errors.Wrapf(err, "record sighting on %s", deerID)
		}
		return w.stampBurst(ctx, tx, det, img, deerID)
	})
}

// embedQueries crops the detection and runs every configured extractor
// over the crop. The first vector is the index search key; the rest only
// re-rank candidates.
func (w *Worker) embedQueries(ctx context.Context, det *model.Detection, img *model.Image) ([][]float32, string, error) {
	data, err := w.source.Fetch(ctx, img.Path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "fetch bytes for image %s", img.ID)
	}
	crop, err := CropDetection(data, det.Box(), w.pipeline.GetCropPadding())
	if err != nil {
		return nil, "", errors.Wrapf(err, "crop detection %s", det.ID)
	}

	roles := w.registry.EmbedderRoles()
	if len(roles) > 2 {
		// the profile row persists one alternate vector
		roles = roles[:2]
	}

	queries := make([][]float32, 0, len(roles))
	version := ""
	for _, role := range roles {
		eng, err := w.registry.Engine(role)
		if err != nil {
			return nil, "", err
		}
		if version == "" {
			version = eng.Version()
		}
		vec, err := eng.Embed(ctx, crop)
		if err != nil {
			return nil, "", errors.Wrapf(err, "embed detection %s with %s", det.ID, role)
		}
		queries = append(queries, vectormath.Normalize(vec))
	}
	return queries, version, nil
}

// assignOrCreate searches the profile store and commits the decision. A
// lost lock or a profile that drifted below the threshold while unlocked
// sends us back to the search; after maxScoreRetries rounds the delivery
// is handed back to the queue as contended.
func (w *Worker) assignOrCreate(ctx context.Context, det *model.Detection, img *model.Image, queries [][]float32, version string) error {
	weights := w.pipeline.GetEnsembleWeights()
	tau := w.pipeline.GetReidThreshold()
	sexFilter := model.DeriveSex(det.Class)

	for attempt := 0; attempt < maxScoreRetries; attempt++ {
		searchStart := time.Now()
		cands, err := w.facade.GetDeer().NearestProfiles(ctx, pgvector.NewVector(queries[0]), sexFilter, w.pipeline.GetCandidateK())
		stageSeconds.WithLabelValues("search").Observe(time.Since(searchStart).Seconds())
		if err != nil {
			return errors.Wrapf(err, "candidate search for detection %s", det.ID)
		}

		var best *model.DeerCandidate
		bestScore := math.Inf(-1)
		for _, cand := range cands {
			if s := scoreProfile(queries, &cand.Deer, weights); s > bestScore {
				best, bestScore = cand, s
			}
		}
		if best != nil {
			bestScoreObserved.Observe(bestScore)
		}

		// nothing clears the threshold (or the store is empty): this is a
		// new individual
		if best == nil || bestScore < tau {
			return w.createProfile(ctx, det, img, queries, version)
		}

		err = w.assignProfile(ctx, det, img, best.ID, queries, weights, tau)
		switch {
		case err == nil:
			assignmentsTotal.WithLabelValues("similarity").Inc()
			log.Infof("reid: detection %s assigned to profile %s (score %.3f)", det.ID, best.ID, bestScore)
			return nil
		case errors.Is(err, errScoreDrifted):
			continue
		case antlererrors.Classify(err) == antlererrors.KindProfileRace:
			continue
		default:
			return err
		}
	}

	return errors.Wrapf(antlererrors.ErrProfileContended, "detection %s lost %d scoring rounds", det.ID, maxScoreRetries)
}

// assignProfile folds the detection into an existing profile: blend the
// stored vectors toward the query, bump the sighting stats and stamp the
// burst, all in one transaction behind a row lock.
func (w *Worker) assignProfile(ctx context.Context, det *model.Detection, img *model.Image, deerID string,
	queries [][]float32, weights []float64, tau float64) error {
	alpha := w.pipeline.GetProfileEmaAlpha()

	commitStart := time.Now()
	defer func() {
		stageSeconds.WithLabelValues("commit").Observe(time.Since(commitStart).Seconds())
	}()

	return w.facade.Transaction(ctx, func(tx database.FacadeInterface) error {
		locked, err := tx.GetDeer().LockProfileForUpdate(ctx, deerID)
		if err != nil {
			return errors.Wrapf(err, "lock profile %s", deerID)
		}
		if locked == nil {
			return errors.Wrapf(antlererrors.ErrProfileContended, "profile %s vanished under lock", deerID)
		}

		// the profile may have moved while we scored; confirm the match
		// against the locked row before folding our query in
		if scoreProfile(queries, locked, weights) < tau {
			return errScoreDrifted
		}

		patch := map[string]interface{}{
			"embedding": pgvector.NewVector(vectormath.EMA(locked.Embedding.Slice(), queries[0], alpha)),
		}
		if len(queries) > 1 {
			alt := queries[1]
			if locked.EmbeddingAlt != nil {
				alt = vectormath.EMA(locked.EmbeddingAlt.Slice(), queries[1], alpha)
			}
			patch["embedding_alt"] = pgvector.NewVector(alt)
		}

		if err := tx.GetDeer().UpdateProfile(ctx, deerID, patch); err != nil {
			return errors.Wrapf(err, "update profile %s", deerID)
		}
		if err := tx.GetDetection().AssignDeer(ctx, det.ID, deerID); err != nil {
			return err
		}
		if err := tx.GetDeer().RecordSighting(ctx, deerID, img.Timestamp); err != nil {
			return errors.Wrapf(err, "record sighting on %s", deerID)
		}
		return w.stampBurst(ctx, tx, det, img, deerID)
	})
}

// createProfile opens a new profile seeded with the query vectors and
// claims the detection for it.
func (w *Worker) createProfile(ctx context.Context, det *model.Detection, img *model.Image, queries [][]float32, version string) error {
	deer := &model.Deer{
		ID:               uuid.NewString(),
		Sex:              model.DeriveSex(det.Class),
		Embedding:        pgvector.NewVector(queries[0]),
		EmbeddingVersion: version,
		FirstSeen:        img.Timestamp,
		LastSeen:         img.Timestamp,
		SightingCount:    1,
	}
	if len(queries) > 1 {
		alt := pgvector.NewVector(queries[1])
		deer.EmbeddingAlt = &alt
	}

	commitStart := time.Now()
	err := w.facade.Transaction(ctx, func(tx database.FacadeInterface) error {
		if err := tx.GetDeer().InsertProfile(ctx, deer); err != nil {
			return errors.Wrapf(err, "insert profile for detection %s", det.ID)
		}
		if err := tx.GetDetection().AssignDeer(ctx, det.ID, deer.ID); err != nil {
			return err
		}
		return w.stampBurst(ctx, tx, det, img, deer.ID)
	})
	stageSeconds.WithLabelValues("commit").Observe(time.Since(commitStart).Seconds())
	if err != nil {
		return err
	}

	profilesCreatedTotal.Inc()
	log.Infof("reid: detection %s opened new profile %s (%s)", det.ID, deer.ID, deer.Sex)
	return nil
}

// stampBurst gives the detection and its same-profile burst siblings a
// shared burst group. Members assigned to other profiles, or to none yet,
// are left alone; they stamp themselves when their turn comes. A
// detection alone with its profile in the window gets no group.
func (w *Worker) stampBurst(ctx context.Context, tx database.FacadeInterface, det *model.Detection, img *model.Image, deerID string) error {
	members, err := tx.GetDetection().BurstWindow(ctx, img.LocationID, img.Timestamp, w.pipeline.GetBurstWindow())
	if err != nil {
		return errors.Wrapf(err, "burst window for detection %s", det.ID)
	}

	ids := []string{det.ID}
	groupID := ""
	for _, m := range members {
		if m.ID == det.ID || m.DeerID == nil || *m.DeerID != deerID {
			continue
		}
		ids = append(ids, m.ID)
		if groupID == "" && m.BurstGroupID != nil {
			groupID = *m.BurstGroupID
		}
	}
	if len(ids) < 2 {
		return nil
	}
	if groupID == "" {
		groupID = uuid.NewString()
	}
	return tx.GetDetection().AssignBurstGroup(ctx, ids, groupID)
}

// scoreProfile computes the ensemble similarity between the query vectors
// and a stored profile.
func scoreProfile(queries [][]float32, deer *model.Deer, weights []float64) float64 {
	cands := [][]float32{deer.Embedding.Slice()}
	if deer.EmbeddingAlt != nil {
		cands = append(cands, deer.EmbeddingAlt.Slice())
	}
	return vectormath.EnsembleScore(queries, cands, weights)
}

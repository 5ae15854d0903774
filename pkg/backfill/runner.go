// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package backfill

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/imagestore"
	"github.com/wildsight/antler/pkg/inference"
	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/queue"
	"github.com/wildsight/antler/pkg/reid"
	"github.com/wildsight/antler/pkg/vectormath"
)

// Runner executes the one-shot admin scans. Every scan walks its row set
// in bounded batches and tolerates per-row failures: a row that errors is
// counted and logged, never aborts the pass.
type Runner struct {
	facade   database.FacadeInterface
	queue    queue.Queue
	tracker  *Tracker
	source   imagestore.Source
	registry *inference.ModelRegistry
	pipeline config.PipelineSettings
	batch    int
}

// NewRunner wires a Runner. Source and registry are only touched by
// ReEmbed; the queue-side scans never load models.
func NewRunner(facade database.FacadeInterface, q queue.Queue, tracker *Tracker,
	source imagestore.Source, registry *inference.ModelRegistry,
	pipeline config.PipelineSettings, conf config.BackfillSettings) *Runner {
	return &Runner{
		facade:   facade,
		queue:    q,
		tracker:  tracker,
		source:   source,
		registry: registry,
		pipeline: pipeline,
		batch:    conf.GetBatchSize(),
	}
}

// jobCounters accumulates per-run progress.
type jobCounters struct {
	total, processed, skipped, failed int
}

func (c *jobCounters) flush(t *Tracker, id string) {
	t.Progress(id, c.total, c.processed, c.skipped, c.failed)
}

// BackfillPending queues a detect task for every pending image that does
// not already have one in flight. Catches rows committed while no worker
// was around to hear about them.
func (r *Runner) BackfillPending(ctx context.Context, dryRun bool) (*Job, error) {
	job, err := r.tracker.Begin(KindBackfill, dryRun)
	if err != nil {
		return nil, err
	}

	live, err := r.queue.ActiveItems(ctx, model.QueueDetect)
	if err != nil {
		return r.fail(job, errors.Wrap(err, "list live detect tasks"))
	}

	var c jobCounters
	for offset := 0; ; offset += r.batch {
		if err := ctx.Err(); err != nil {
			return r.fail(job, err)
		}
		imgs, err := r.facade.GetImage().ListByStatus(ctx, model.ImageStatusPending, r.batch, offset)
		if err != nil {
			return r.fail(job, errors.Wrap(err, "scan pending images"))
		}
		if len(imgs) == 0 {
			break
		}

		for _, img := range imgs {
			c.total++
			if _, ok := live[img.ID]; ok {
				c.skipped++
				continue
			}
			if dryRun {
				c.processed++
				continue
			}
			if err := r.queue.Enqueue(ctx, model.QueueDetect, img.ID); err != nil {
				c.failed++
				log.Errorf("backfill: enqueue image %s: %v", img.ID, err)
				continue
			}
			c.processed++
		}
		c.flush(r.tracker, job.ID)

		if len(imgs) < r.batch {
			break
		}
	}

	return r.finish(job, &c)
}

// ReassignUnassigned re-queues eligible detections that still lack a
// profile. This is the recovery path for detections created while no
// re-id worker was draining the queue.
func (r *Runner) ReassignUnassigned(ctx context.Context, dryRun bool) (*Job, error) {
	job, err := r.tracker.Begin(KindReassign, dryRun)
	if err != nil {
		return nil, err
	}

	live, err := r.queue.ActiveItems(ctx, model.QueueReid)
	if err != nil {
		return r.fail(job, errors.Wrap(err, "list live reid tasks"))
	}

	var c jobCounters
	for offset := 0; ; offset += r.batch {
		if err := ctx.Err(); err != nil {
			return r.fail(job, err)
		}
		dets, err := r.facade.GetDetection().ListUnassigned(ctx, r.batch, offset)
		if err != nil {
			return r.fail(job, errors.Wrap(err, "scan unassigned detections"))
		}
		if len(dets) == 0 {
			break
		}

		for _, det := range dets {
			c.total++
			if _, ok := live[det.ID]; ok {
				c.skipped++
				continue
			}
			if dryRun {
				c.processed++
				continue
			}
			if err := r.queue.Enqueue(ctx, model.QueueReid, det.ID); err != nil {
				c.failed++
				log.Errorf("reassign: enqueue detection %s: %v", det.ID, err)
				continue
			}
			c.processed++
		}
		c.flush(r.tracker, job.ID)

		if len(dets) < r.batch {
			break
		}
	}

	return r.finish(job, &c)
}

// RevertStaleProcessing returns images stuck in processing with no live
// detect task to pending and queues them again. An image lands there when
// its worker crashed and the task burned through the retry budget.
func (r *Runner) RevertStaleProcessing(ctx context.Context, dryRun bool) (*Job, error) {
	job, err := r.tracker.Begin(KindRevert, dryRun)
	if err != nil {
		return nil, err
	}

	live, err := r.queue.ActiveItems(ctx, model.QueueDetect)
	if err != nil {
		return r.fail(job, errors.Wrap(err, "list live detect tasks"))
	}

	var c jobCounters
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return r.fail(job, err)
		}
		imgs, err := r.facade.GetImage().ListByStatus(ctx, model.ImageStatusProcessing, r.batch, offset)
		if err != nil {
			return r.fail(job, errors.Wrap(err, "scan processing images"))
		}
		if len(imgs) == 0 {
			break
		}

		reverted := 0
		for _, img := range imgs {
			c.total++
			if _, ok := live[img.ID]; ok {
				// a worker (or its redelivery) still owns this image
				c.skipped++
				continue
			}
			if dryRun {
				c.processed++
				continue
			}
			if err := r.facade.GetImage().ResetForReprocess(ctx, img.ID); err != nil {
				c.failed++
				log.Errorf("revert-stale: reset image %s: %v", img.ID, err)
				continue
			}
			reverted++
			if err := r.queue.Enqueue(ctx, model.QueueDetect, img.ID); err != nil {
				// the image is pending again; the next backfill run
				// queues it
				c.failed++
				log.Errorf("revert-stale: enqueue image %s: %v", img.ID, err)
				continue
			}
			c.processed++
		}
		c.flush(r.tracker, job.ID)

		if len(imgs) < r.batch {
			break
		}
		// reverted rows left the processing scan, so only the rows still
		// in it move the offset
		offset += len(imgs) - reverted
	}

	return r.finish(job, &c)
}

// ReEmbed recomputes every profile's embeddings from its best sighting
// with the currently configured extractor ensemble, writing vectors and
// version atomically per profile under the row lock. Run it after an
// extractor upgrade; profile identity is preserved, only the vectors move.
func (r *Runner) ReEmbed(ctx context.Context, dryRun bool) (*Job, error) {
	job, err := r.tracker.Begin(KindReEmbed, dryRun)
	if err != nil {
		return nil, err
	}

	var c jobCounters
	for offset := 0; ; offset += r.batch {
		if err := ctx.Err(); err != nil {
			return r.fail(job, err)
		}
		profiles, err := r.facade.GetDeer().List(ctx, r.batch, offset)
		if err != nil {
			return r.fail(job, errors.Wrap(err, "scan profiles"))
		}
		if len(profiles) == 0 {
			break
		}

		for _, profile := range profiles {
			c.total++
			switch err := r.reembedProfile(ctx, profile.ID, dryRun); {
			case err == nil:
				c.processed++
			case errors.Is(err, errNothingToEmbed):
				c.skipped++
			default:
				c.failed++
				log.Errorf("re-embed: profile %s: %v", profile.ID, err)
			}
		}
		c.flush(r.tracker, job.ID)

		if len(profiles) < r.batch {
			break
		}
	}

	return r.finish(job, &c)
}

// errNothingToEmbed marks profiles with no usable sighting; they are
// compaction candidates, not failures.
var errNothingToEmbed = errors.New("profile has no usable sighting")

func (r *Runner) reembedProfile(ctx context.Context, deerID string, dryRun bool) error {
	dets, err := r.facade.GetDetection().ListByDeer(ctx, deerID, 0)
	if err != nil {
		return errors.Wrap(err, "list sightings")
	}
	if len(dets) == 0 {
		return errNothingToEmbed
	}

	best := dets[0]
	for _, det := range dets[1:] {
		if det.Confidence > best.Confidence {
			best = det
		}
	}

	img, err := r.facade.GetImage().Get(ctx, best.ImageID)
	if err != nil {
		return errors.Wrapf(err, "load image %s", best.ImageID)
	}
	if img == nil {
		return errNothingToEmbed
	}

	data, err := r.source.Fetch(ctx, img.Path)
	if err != nil {
		return errors.Wrapf(err, "fetch bytes for image %s", img.ID)
	}
	crop, err := reid.CropDetection(data, best.Box(), r.pipeline.GetCropPadding())
	if err != nil {
		return errors.Wrapf(err, "crop detection %s", best.ID)
	}

	roles := r.registry.EmbedderRoles()
	if len(roles) > 2 {
		// the profile row persists one alternate vector
		roles = roles[:2]
	}

	queries := make([][]float32, 0, len(roles))
	version := ""
	for _, role := range roles {
		eng, err := r.registry.Engine(role)
		if err != nil {
			return err
		}
		if version == "" {
			version = eng.Version()
		}
		vec, err := eng.Embed(ctx, crop)
		if err != nil {
			return errors.Wrapf(err, "embed detection %s with %s", best.ID, role)
		}
		queries = append(queries, vectormath.Normalize(vec))
	}

	if dryRun {
		return nil
	}

	return r.facade.Transaction(ctx, func(tx database.FacadeInterface) error {
		locked, err := tx.GetDeer().LockProfileForUpdate(ctx, deerID)
		if err != nil {
			return errors.Wrapf(err, "lock profile %s", deerID)
		}
		if locked == nil {
			return errNothingToEmbed
		}

		patch := map[string]interface{}{
			"embedding":         pgvector.NewVector(queries[0]),
			"embedding_version": version,
		}
		if len(queries) > 1 {
			patch["embedding_alt"] = pgvector.NewVector(queries[1])
		} else {
			// a single-extractor ensemble has no alternate vector; clear
			// any stale one so the row matches the stamped version
			patch["embedding_alt"] = nil
		}
		return tx.GetDeer().UpdateProfile(ctx, deerID, patch)
	})
}

// CompactProfiles deletes profiles no detection references anymore, the
// debris of reassignments and manual cleanup. Guarded by --yes in the CLI.
func (r *Runner) CompactProfiles(ctx context.Context, dryRun bool) (*Job, error) {
	job, err := r.tracker.Begin(KindCompact, dryRun)
	if err != nil {
		return nil, err
	}

	var c jobCounters
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return r.fail(job, err)
		}
		profiles, err := r.facade.GetDeer().List(ctx, r.batch, offset)
		if err != nil {
			return r.fail(job, errors.Wrap(err, "scan profiles"))
		}
		if len(profiles) == 0 {
			break
		}

		kept := 0
		for _, profile := range profiles {
			c.total++
			n, err := r.facade.GetDetection().CountByDeer(ctx, profile.ID)
			if err != nil {
				c.failed++
				kept++
				log.Errorf("compact: count detections of %s: %v", profile.ID, err)
				continue
			}
			if n > 0 {
				c.skipped++
				kept++
				continue
			}
			if dryRun {
				c.processed++
				kept++
				continue
			}
			if err := r.facade.GetDeer().Delete(ctx, profile.ID); err != nil {
				c.failed++
				kept++
				log.Errorf("compact: delete profile %s: %v", profile.ID, err)
				continue
			}
			c.processed++
		}
		c.flush(r.tracker, job.ID)

		if len(profiles) < r.batch {
			break
		}
		// deleted rows left the scan; only the rows kept move the offset
		offset += kept
	}

	return r.finish(job, &c)
}

func (r *Runner) finish(job *Job, c *jobCounters) (*Job, error) {
	c.flush(r.tracker, job.ID)
	r.tracker.End(job.ID, nil)
	done := r.tracker.Get(job.ID)
	log.Infof("%s: scanned %d, processed %d, skipped %d, failed %d (dry_run=%v)",
		done.Kind, done.Total, done.Processed, done.Skipped, done.Failed, done.DryRun)
	return done, nil
}

func (r *Runner) fail(job *Job, err error) (*Job, error) {
	r.tracker.End(job.ID, err)
	return r.tracker.Get(job.ID), err
}

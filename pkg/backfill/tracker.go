// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package backfill holds the admin-side recovery paths of the pipeline:
// one-shot scans that queue work the hot path missed, profile
// re-embedding for extractor upgrades, orphan-profile compaction and the
// in-service reassignment loop. Everything here runs out of the hot path
// and is safe to re-run; the handlers downstream are idempotent.
package backfill

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wildsight/antler/pkg/utils/sliceUtil"
)

// JobKind names one admin operation.
type JobKind string

const (
	KindBackfill JobKind = "backfill"
	KindReassign JobKind = "reassign"
	KindReEmbed  JobKind = "re-embed"
	KindRevert   JobKind = "revert-stale"
	KindCompact  JobKind = "compact-profiles"
)

// JobStatus is the lifecycle of one admin job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job records one admin run in memory. Total counts rows scanned;
// Processed the rows acted on (or that would be, on a dry run); Skipped
// the rows left alone on purpose; Failed the rows whose action errored.
type Job struct {
	ID           string     `json:"id"`
	Kind         JobKind    `json:"kind"`
	Status       JobStatus  `json:"status"`
	DryRun       bool       `json:"dry_run"`
	Total        int        `json:"total"`
	Processed    int        `json:"processed"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Tracker keeps admin job records in memory, one active job per kind.
// Records survive until CleanupOld trims them, so an operator can read
// back what the last runs did.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job)}
}

// Begin opens a job record. A second job of a kind cannot start while one
// is still running; the scans would chase each other's writes.
func (t *Tracker) Begin(kind JobKind, dryRun bool) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, job := range t.jobs {
		if job.Kind == kind && job.Status == JobStatusRunning {
			return nil, errors.Errorf("%s job %s is already running", kind, job.ID)
		}
	}

	job := &Job{
		ID:        fmt.Sprintf("%s-%d", kind, time.Now().UnixNano()),
		Kind:      kind,
		Status:    JobStatusRunning,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
	t.jobs[job.ID] = job
	return t.copyOf(job), nil
}

// Progress replaces the counters of a running job
func (t *Tracker) Progress(id string, total, processed, skipped, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok {
		job.Total = total
		job.Processed = processed
		job.Skipped = skipped
		job.Failed = failed
	}
}

// End closes a job, failed when err is non-nil
func (t *Tracker) End(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.CompletedAt = &now
	if err != nil {
		job.Status = JobStatusFailed
		job.ErrorMessage = err.Error()
		return
	}
	job.Status = JobStatusCompleted
}

// Get returns a copy of one job, nil when absent
func (t *Tracker) Get(id string) *Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil
	}
	return t.copyOf(job)
}

// List returns one page of job records, newest first, plus the total
// record count.
func (t *Tracker) List(page, pageSize int) ([]*Job, int) {
	t.mu.RLock()
	all := make([]*Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		all = append(all, t.copyOf(job))
	}
	t.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID > all[j].ID
	})
	rows, total := sliceUtil.Paginate(all, page, pageSize)
	return rows, total
}

// HasActive reports whether a job of the kind is still running
func (t *Tracker) HasActive(kind JobKind) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, job := range t.jobs {
		if job.Kind == kind && job.Status == JobStatusRunning {
			return true
		}
	}
	return false
}

// CleanupOld drops finished records older than maxAge and returns how
// many were removed. Running jobs are never dropped.
func (t *Tracker) CleanupOld(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	count := 0
	for id, job := range t.jobs {
		if job.Status == JobStatusRunning {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(t.jobs, id)
			count++
		}
	}
	return count
}

func (t *Tracker) copyOf(job *Job) *Job {
	cp := *job
	return &cp
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"errors"
	"time"

	"github.com/wildsight/antler/pkg/database/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTaskNotFound is returned when a queue task is missing or no longer in
// the expected status.
var ErrTaskNotFound = errors.New("queue task not found")

// QueueTaskFacadeInterface defines the database operation interface for queue tasks
type QueueTaskFacadeInterface interface {
	// Create appends a new task to the named queue
	Create(ctx context.Context, task *model.QueueTask) error

	// Get retrieves a task by ID; returns nil when absent
	Get(ctx context.Context, id string) (*model.QueueTask, error)

	// ClaimTask reserves the oldest pending task of a queue for
	// visibility, hiding it from other consumers until the lease expires.
	// Returns nil when the queue is empty.
	ClaimTask(ctx context.Context, queue string, visibility time.Duration) (*model.QueueTask, error)

	// Complete marks a processing task completed (ack)
	Complete(ctx context.Context, id string) error

	// Release makes a processing task immediately visible again without
	// consuming a retry (nack)
	Release(ctx context.Context, id string) error

	// Fail records a handler failure: the task returns to pending while
	// retries remain, hidden until retryDelay elapses, otherwise it is
	// parked dead
	Fail(ctx context.Context, id string, errorMsg string, retryDelay time.Duration) error

	// HandleTimeouts sweeps expired leases back to pending or dead and
	// returns how many rows moved
	HandleTimeouts(ctx context.Context) (int, error)

	// RequeueDead returns dead tasks of a queue to pending with a fresh
	// retry budget (operator path)
	RequeueDead(ctx context.Context, queue string) (int, error)

	// ListDead returns dead tasks of a queue, oldest parked first, capped
	// at limit (0 means no cap)
	ListDead(ctx context.Context, queue string, limit int) ([]model.QueueTask, error)

	// ListActiveItems returns the distinct item ids holding a pending or
	// processing task on a queue
	ListActiveItems(ctx context.Context, queue string) ([]string, error)

	// CountByStatus returns per-status row counts for one queue
	CountByStatus(ctx context.Context, queue string) (map[string]int64, error)

	// Cleanup removes completed tasks older than the retention window
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// WithDB method
	WithDB(db *gorm.DB) QueueTaskFacadeInterface
}

// QueueTaskFacade implements QueueTaskFacadeInterface
type QueueTaskFacade struct {
	BaseFacade
}

// NewQueueTaskFacade creates a new QueueTaskFacade instance
func NewQueueTaskFacade() QueueTaskFacadeInterface {
	return &QueueTaskFacade{}
}

func (f *QueueTaskFacade) WithDB(db *gorm.DB) QueueTaskFacadeInterface {
	return &QueueTaskFacade{
		BaseFacade: f.withDB(db),
	}
}

// Create appends a new task to the named queue
func (f *QueueTaskFacade) Create(ctx context.Context, task *model.QueueTask) error {
	db := f.getDB().WithContext(ctx)
	return db.Create(task).Error
}

// Get retrieves a task by ID
func (f *QueueTaskFacade) Get(ctx context.Context, id string) (*model.QueueTask, error) {
	db := f.getDB().WithContext(ctx)
	var task model.QueueTask
	err := db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// ClaimTask reserves the oldest pending task using SELECT FOR UPDATE SKIP
// LOCKED, so concurrent consumers never block on each other's claims and
// each task goes to exactly one of them.
func (f *QueueTaskFacade) ClaimTask(ctx context.Context, queue string, visibility time.Duration) (*model.QueueTask, error) {
	db := f.getDB().WithContext(ctx)
	var task model.QueueTask

	err := db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Clauses(clause.Locking{
			Strength: "UPDATE",
			Options:  "SKIP LOCKED",
		}).
			Where("queue = ? AND status = ?", queue, model.TaskStatusPending).
			Where("visible_at IS NULL OR visible_at <= ?", now).
			Order("created_at ASC, id ASC").
			First(&task)
		if result.Error != nil {
			return result.Error
		}

		timeoutAt := now.Add(visibility)
		task.Status = model.TaskStatusProcessing
		task.ClaimedAt = &now
		task.TimeoutAt = &timeoutAt

		return tx.Save(&task).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // queue empty
		}
		return nil, err
	}
	return &task, nil
}

// Complete marks a processing task completed
func (f *QueueTaskFacade) Complete(ctx context.Context, id string) error {
	db := f.getDB().WithContext(ctx)
	now := time.Now()

	result := db.Model(&model.QueueTask{}).
		Where("id = ? AND status = ?", id, model.TaskStatusProcessing).
		Updates(map[string]interface{}{
			"status":       model.TaskStatusCompleted,
			"completed_at": now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Release makes a processing task immediately visible again. The retry
// counter is untouched, so a nack never eats into the retry budget.
func (f *QueueTaskFacade) Release(ctx context.Context, id string) error {
	db := f.getDB().WithContext(ctx)

	result := db.Model(&model.QueueTask{}).
		Where("id = ? AND status = ?", id, model.TaskStatusProcessing).
		Updates(map[string]interface{}{
			"status":     model.TaskStatusPending,
			"claimed_at": nil,
			"timeout_at": nil,
			"visible_at": nil,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Fail records a handler failure against the retry budget
func (f *QueueTaskFacade) Fail(ctx context.Context, id string, errorMsg string, retryDelay time.Duration) error {
	db := f.getDB().WithContext(ctx)

	var task model.QueueTask
	if err := db.Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return err
	}

	if task.RetryCount+1 < task.MaxRetries {
		visibleAt := time.Now().Add(retryDelay)
		result := db.Model(&model.QueueTask{}).
			Where("id = ? AND status = ?", id, model.TaskStatusProcessing).
			Updates(map[string]interface{}{
				"status":        model.TaskStatusPending,
				"retry_count":   task.RetryCount + 1,
				"error_message": errorMsg,
				"claimed_at":    nil,
				"timeout_at":    nil,
				"visible_at":    visibleAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	}

	// Retry budget exhausted: park for operator inspection.
	now := time.Now()
	result := db.Model(&model.QueueTask{}).
		Where("id = ? AND status = ?", id, model.TaskStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.TaskStatusDead,
			"retry_count":   task.RetryCount + 1,
			"error_message": errorMsg,
			"completed_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// HandleTimeouts sweeps tasks whose lease expired without an ack. Each
// expired claim counts against the retry budget because the handler may
// have crashed mid-flight; once exhausted the task goes dead.
func (f *QueueTaskFacade) HandleTimeouts(ctx context.Context) (int, error) {
	db := f.getDB().WithContext(ctx)
	now := time.Now()

	var tasks []model.QueueTask
	err := db.Where("status = ? AND timeout_at < ?", model.TaskStatusProcessing, now).
		Find(&tasks).Error
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range tasks {
		task := &tasks[i]
		if task.RetryCount+1 < task.MaxRetries {
			err = db.Model(&model.QueueTask{}).
				Where("id = ? AND status = ?", task.ID, model.TaskStatusProcessing).
				Updates(map[string]interface{}{
					"status":      model.TaskStatusPending,
					"retry_count": task.RetryCount + 1,
					"claimed_at":  nil,
					"timeout_at":  nil,
					"visible_at":  nil,
				}).Error
		} else {
			err = db.Model(&model.QueueTask{}).
				Where("id = ? AND status = ?", task.ID, model.TaskStatusProcessing).
				Updates(map[string]interface{}{
					"status":        model.TaskStatusDead,
					"retry_count":   task.RetryCount + 1,
					"error_message": "visibility timeout exceeded after max retries",
					"completed_at":  now,
				}).Error
		}
		if err == nil {
			count++
		}
	}
	return count, nil
}

// RequeueDead returns dead tasks of a queue to pending with a fresh budget
func (f *QueueTaskFacade) RequeueDead(ctx context.Context, queue string) (int, error) {
	db := f.getDB().WithContext(ctx)

	result := db.Model(&model.QueueTask{}).
		Where("queue = ? AND status = ?", queue, model.TaskStatusDead).
		Updates(map[string]interface{}{
			"status":        model.TaskStatusPending,
			"retry_count":   0,
			"error_message": "",
			"claimed_at":    nil,
			"timeout_at":    nil,
			"visible_at":    nil,
			"completed_at":  nil,
		})
	return int(result.RowsAffected), result.Error
}

// ListDead returns dead tasks of a queue for operator inspection, oldest
// parked first
func (f *QueueTaskFacade) ListDead(ctx context.Context, queue string, limit int) ([]model.QueueTask, error) {
	db := f.getDB().WithContext(ctx)

	query := db.Where("queue = ? AND status = ?", queue, model.TaskStatusDead).
		Order("completed_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var tasks []model.QueueTask
	if err := query.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListActiveItems returns the distinct item ids holding a live task on a
// queue. Backfills consult it so work already in flight is not queued
// twice.
func (f *QueueTaskFacade) ListActiveItems(ctx context.Context, queue string) ([]string, error) {
	db := f.getDB().WithContext(ctx)

	var ids []string
	err := db.Model(&model.QueueTask{}).
		Distinct().
		Where("queue = ? AND status IN ?", queue,
			[]string{model.TaskStatusPending, model.TaskStatusProcessing}).
		Pluck("item_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CountByStatus returns per-status row counts for one queue
func (f *QueueTaskFacade) CountByStatus(ctx context.Context, queue string) (map[string]int64, error) {
	db := f.getDB().WithContext(ctx)

	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := db.Model(&model.QueueTask{}).
		Select("status, COUNT(*) AS count").
		Where("queue = ?", queue).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// Cleanup removes completed tasks older than the retention window. Dead
// tasks are kept until an operator requeues or deletes them explicitly.
func (f *QueueTaskFacade) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	db := f.getDB().WithContext(ctx)
	cutoff := time.Now().Add(-olderThan)

	result := db.Where("status = ? AND completed_at < ?", model.TaskStatusCompleted, cutoff).
		Delete(&model.QueueTask{})
	return int(result.RowsAffected), result.Error
}

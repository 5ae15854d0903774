// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package queue

import (
	"context"

	"github.com/google/uuid"
	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/logger/log"
)

// DBQueue implements Queue on the queue_task table. Reservation is a
// SKIP LOCKED claim, so consumers scale without coordinating; durability
// and at-least-once redelivery come from the table plus the timeout sweep.
type DBQueue struct {
	facade database.QueueTaskFacadeInterface
	conf   config.QueueSettings
	retry  config.PipelineSettings
}

// NewDBQueue creates a DBQueue over the given facade
func NewDBQueue(facade database.QueueTaskFacadeInterface, conf config.QueueSettings, pipeline config.PipelineSettings) *DBQueue {
	return &DBQueue{
		facade: facade,
		conf:   conf,
		retry:  pipeline,
	}
}

// Enqueue appends an item to the named FIFO
func (q *DBQueue) Enqueue(ctx context.Context, queueName, itemID string) error {
	task := &model.QueueTask{
		ID:         uuid.New().String(),
		Queue:      queueName,
		ItemID:     itemID,
		Status:     model.TaskStatusPending,
		MaxRetries: q.retry.GetMaxRetries(),
	}
	if err := q.facade.Create(ctx, task); err != nil {
		return err
	}
	enqueuedTotal.WithLabelValues(queueName).Inc()
	return nil
}

// Reserve claims the next visible item for the configured visibility window
func (q *DBQueue) Reserve(ctx context.Context, queueName string) (*Delivery, error) {
	task, err := q.facade.ClaimTask(ctx, queueName, q.conf.GetVisibilityTimeout())
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}
	reservedTotal.WithLabelValues(queueName).Inc()
	return &Delivery{
		TaskID:     task.ID,
		Queue:      task.Queue,
		ItemID:     task.ItemID,
		RetryCount: task.RetryCount,
	}, nil
}

// Ack removes the item permanently
func (q *DBQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.facade.Complete(ctx, d.TaskID); err != nil {
		return err
	}
	ackedTotal.WithLabelValues(d.Queue).Inc()
	return nil
}

// Nack reports a handler failure and charges the retry budget
func (q *DBQueue) Nack(ctx context.Context, d *Delivery, reason string) error {
	delay := retryBackoff(q.conf.GetRetryBackoffBase(), d.RetryCount, q.conf.GetVisibilityTimeout())
	if err := q.facade.Fail(ctx, d.TaskID, reason, delay); err != nil {
		return err
	}

	task, err := q.facade.Get(ctx, d.TaskID)
	if err != nil {
		return err
	}
	if task != nil && task.Status == model.TaskStatusDead {
		log.Warnf("queue %s: item %s dead-lettered after %d failures: %s",
			d.Queue, d.ItemID, task.RetryCount, reason)
		deadLetteredTotal.WithLabelValues(d.Queue).Inc()
	} else {
		nackedTotal.WithLabelValues(d.Queue).Inc()
	}
	return nil
}

// Release puts an unprocessed item straight back without charging the budget
func (q *DBQueue) Release(ctx context.Context, d *Delivery) error {
	if err := q.facade.Release(ctx, d.TaskID); err != nil {
		return err
	}
	releasedTotal.WithLabelValues(d.Queue).Inc()
	return nil
}

// RequeueDead returns dead-lettered items to pending (operator path)
func (q *DBQueue) RequeueDead(ctx context.Context, queueName string) (int, error) {
	n, err := q.facade.RequeueDead(ctx, queueName)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("queue %s: requeued %d dead items", queueName, n)
	}
	return n, nil
}

// ListDead returns dead-lettered items for operator inspection
func (q *DBQueue) ListDead(ctx context.Context, queueName string, limit int) ([]model.QueueTask, error) {
	return q.facade.ListDead(ctx, queueName, limit)
}

// ActiveItems returns the item ids with a live task on a queue
func (q *DBQueue) ActiveItems(ctx context.Context, queueName string) (map[string]struct{}, error) {
	ids, err := q.facade.ListActiveItems(ctx, queueName)
	if err != nil {
		return nil, err
	}
	items := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		items[id] = struct{}{}
	}
	return items, nil
}

// Stats returns per-status depth counts for one queue
func (q *DBQueue) Stats(ctx context.Context, queueName string) (map[string]int64, error) {
	counts, err := q.facade.CountByStatus(ctx, queueName)
	if err != nil {
		return nil, err
	}
	for status, count := range counts {
		depthGauge.WithLabelValues(queueName, status).Set(float64(count))
	}
	return counts, nil
}

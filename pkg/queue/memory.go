// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wildsight/antler/pkg/database/model"
)

// MemoryQueue implements Queue on a map, for worker and handler tests. It
// keeps the DBQueue semantics (FIFO order, retry budget, dead-letter
// parking, unbudgeted release), but retries become visible immediately so
// tests never sleep through a back-off.
type MemoryQueue struct {
	mu         sync.Mutex
	maxRetries int
	visibility time.Duration
	seq        int64
	tasks      map[string]*memoryTask
}

type memoryTask struct {
	id        string
	queue     string
	itemID    string
	status    string
	retry     int
	reason    string
	seq       int64
	timeoutAt time.Time
}

// NewMemoryQueue builds an empty queue with the given retry budget.
func NewMemoryQueue(maxRetries int) *MemoryQueue {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &MemoryQueue{
		maxRetries: maxRetries,
		visibility: time.Minute,
		tasks:      make(map[string]*memoryTask),
	}
}

// Enqueue appends an item to the named FIFO
func (q *MemoryQueue) Enqueue(ctx context.Context, queueName, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := uuid.New().String()
	q.tasks[id] = &memoryTask{
		id:     id,
		queue:  queueName,
		itemID: itemID,
		status: model.TaskStatusPending,
		seq:    q.seq,
	}
	return nil
}

// Reserve claims the oldest pending item of a queue
func (q *MemoryQueue) Reserve(ctx context.Context, queueName string) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest *memoryTask
	for _, t := range q.tasks {
		if t.queue != queueName || t.status != model.TaskStatusPending {
			continue
		}
		if oldest == nil || t.seq < oldest.seq {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.status = model.TaskStatusProcessing
	oldest.timeoutAt = time.Now().Add(q.visibility)
	return &Delivery{
		TaskID:     oldest.id,
		Queue:      oldest.queue,
		ItemID:     oldest.itemID,
		RetryCount: oldest.retry,
	}, nil
}

// Ack removes the item permanently
func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[d.TaskID]
	if !ok || t.status != model.TaskStatusProcessing {
		return errors.Errorf("task %s is not processing", d.TaskID)
	}
	t.status = model.TaskStatusCompleted
	return nil
}

// Nack charges the retry budget; over budget the item parks dead
func (q *MemoryQueue) Nack(ctx context.Context, d *Delivery, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[d.TaskID]
	if !ok || t.status != model.TaskStatusProcessing {
		return errors.Errorf("task %s is not processing", d.TaskID)
	}
	t.retry++
	t.reason = reason
	if t.retry >= q.maxRetries {
		t.status = model.TaskStatusDead
	} else {
		t.status = model.TaskStatusPending
	}
	return nil
}

// Release puts an unprocessed item straight back without charging the budget
func (q *MemoryQueue) Release(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[d.TaskID]
	if !ok || t.status != model.TaskStatusProcessing {
		return errors.Errorf("task %s is not processing", d.TaskID)
	}
	t.status = model.TaskStatusPending
	return nil
}

// RequeueDead returns dead items to pending with a fresh budget
func (q *MemoryQueue) RequeueDead(ctx context.Context, queueName string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.tasks {
		if t.queue == queueName && t.status == model.TaskStatusDead {
			t.status = model.TaskStatusPending
			t.retry = 0
			n++
		}
	}
	return n, nil
}

// ListDead returns dead items in FIFO order
func (q *MemoryQueue) ListDead(ctx context.Context, queueName string, limit int) ([]model.QueueTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ts []*memoryTask
	for _, t := range q.tasks {
		if t.queue == queueName && t.status == model.TaskStatusDead {
			ts = append(ts, t)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].seq < ts[j].seq })
	if limit > 0 && len(ts) > limit {
		ts = ts[:limit]
	}
	out := make([]model.QueueTask, len(ts))
	for i, t := range ts {
		out[i] = model.QueueTask{
			ID:           t.id,
			Queue:        t.queue,
			ItemID:       t.itemID,
			Status:       t.status,
			RetryCount:   t.retry,
			ErrorMessage: t.reason,
		}
	}
	return out, nil
}

// ActiveItems returns the item ids with a live task on a queue
func (q *MemoryQueue) ActiveItems(ctx context.Context, queueName string) (map[string]struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make(map[string]struct{})
	for _, t := range q.tasks {
		if t.queue != queueName {
			continue
		}
		if t.status == model.TaskStatusPending || t.status == model.TaskStatusProcessing {
			items[t.itemID] = struct{}{}
		}
	}
	return items, nil
}

// Stats returns per-status depth counts for one queue
func (q *MemoryQueue) Stats(ctx context.Context, queueName string) (map[string]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[string]int64)
	for _, t := range q.tasks {
		if t.queue == queueName {
			counts[t.status]++
		}
	}
	return counts, nil
}

// Items lists the item ids of a queue in FIFO order, filtered to one
// status. Test helper.
func (q *MemoryQueue) Items(queueName, status string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ts []*memoryTask
	for _, t := range q.tasks {
		if t.queue == queueName && t.status == status {
			ts = append(ts, t)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].seq < ts[j].seq })
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.itemID
	}
	return out
}

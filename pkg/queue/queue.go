// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package queue is the dispatch layer between pipeline stages. Items carry
// ids only (image ids on `detect`, detection ids on `reid`) and are
// delivered at least once: a reservation hides an item for a visibility
// window, and anything neither acked nor failed inside the window becomes
// claimable again. Producers never import consumer code; the two sides
// meet only on the queue name.
package queue

import (
	"context"
	"time"

	"github.com/wildsight/antler/pkg/database/model"
)

// Delivery is one reserved item. The same item may be delivered more than
// once across reservations; RetryCount says how many failures preceded
// this delivery.
type Delivery struct {
	TaskID     string
	Queue      string
	ItemID     string
	RetryCount int
}

// Queue is the dispatch contract between producers and workers.
type Queue interface {
	// Enqueue appends an item to the named FIFO. Calling it twice with
	// the same id yields two deliveries; handlers are idempotent instead.
	Enqueue(ctx context.Context, queueName, itemID string) error

	// Reserve hands the next visible item to exactly one caller and hides
	// it for the configured visibility timeout. Returns nil when the
	// queue is empty.
	Reserve(ctx context.Context, queueName string) (*Delivery, error)

	// Ack removes the item permanently.
	Ack(ctx context.Context, d *Delivery) error

	// Nack reports a handler failure. The item becomes visible again
	// after a back-off that doubles per retry; once the retry budget is
	// spent it moves to the dead-letter state instead.
	Nack(ctx context.Context, d *Delivery, reason string) error

	// Release puts an unprocessed item straight back without charging the
	// retry budget; used when a worker shuts down holding a reservation.
	Release(ctx context.Context, d *Delivery) error

	// RequeueDead returns every dead-lettered item of a queue to pending
	// with a fresh retry budget. Operator path.
	RequeueDead(ctx context.Context, queueName string) (int, error)

	// ListDead returns a queue's dead-lettered items for inspection,
	// oldest parked first, capped at limit (0 means no cap). Operator
	// path.
	ListDead(ctx context.Context, queueName string, limit int) ([]model.QueueTask, error)

	// ActiveItems returns the item ids holding a live (pending or
	// processing) task on a queue, so backfills skip work already in
	// flight. Operator path.
	ActiveItems(ctx context.Context, queueName string) (map[string]struct{}, error)

	// Stats returns per-status depth counts for one queue.
	Stats(ctx context.Context, queueName string) (map[string]int64, error)
}

// retryBackoff doubles the base per prior failure, capped so a flapping
// item cannot hide behind an hours-long delay.
func retryBackoff(base time.Duration, retryCount int, cap time.Duration) time.Duration {
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

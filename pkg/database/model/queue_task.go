// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package model

import "time"

const TableNameQueueTask = "queue_task"

// Queue task statuses. A retryable failure returns the row to pending;
// exceeding the retry budget parks it in dead for operator inspection.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusDead       = "dead"
)

// Queue names. Items carry ids only, never bytes or vectors.
const (
	QueueDetect = "detect"
	QueueReid   = "reid"
)

// QueueTask is one dispatch queue item backed by the database. Reservation
// hides the row until timeout_at; an unacked reservation becomes visible
// again when the requeuer sweeps past its timeout.
type QueueTask struct {
	ID           string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	Queue        string     `gorm:"column:queue;not null;size:64;index:idx_queue_task_claim,priority:1" json:"queue"`
	ItemID       string     `gorm:"column:item_id;not null;size:64" json:"item_id"`
	Status       string     `gorm:"column:status;not null;size:32;default:'pending';index:idx_queue_task_claim,priority:2" json:"status"`
	RetryCount   int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries   int        `gorm:"column:max_retries;not null;default:3" json:"max_retries"`
	ErrorMessage string     `gorm:"column:error_message;size:1024" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;default:now();index:idx_queue_task_claim,priority:3" json:"created_at"`
	ClaimedAt    *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	TimeoutAt    *time.Time `gorm:"column:timeout_at;index" json:"timeout_at,omitempty"`
	VisibleAt    *time.Time `gorm:"column:visible_at" json:"visible_at,omitempty"`
}

// TableName QueueTask's table name
func (*QueueTask) TableName() string {
	return TableNameQueueTask
}

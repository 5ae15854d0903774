// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/database/model"
)

type failCall struct {
	id    string
	msg   string
	delay time.Duration
}

// fakeTaskFacade records facade calls so tests can assert what the queue
// layer asked of the store without a database.
type fakeTaskFacade struct {
	created    []*model.QueueTask
	claimed    *model.QueueTask
	claimErr   error
	completed  []string
	released   []string
	fails      []failCall
	got        *model.QueueTask
	requeueN   int
	counts     map[string]int64
	sweptN     int
	sweepCalls int
	cleanedN   int
}

func (f *fakeTaskFacade) Create(ctx context.Context, task *model.QueueTask) error {
	f.created = append(f.created, task)
	return nil
}

func (f *fakeTaskFacade) Get(ctx context.Context, id string) (*model.QueueTask, error) {
	return f.got, nil
}

func (f *fakeTaskFacade) ClaimTask(ctx context.Context, queue string, visibility time.Duration) (*model.QueueTask, error) {
	return f.claimed, f.claimErr
}

func (f *fakeTaskFacade) Complete(ctx context.Context, id string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeTaskFacade) Release(ctx context.Context, id string) error {
	f.released = append(f.released, id)
	return nil
}

func (f *fakeTaskFacade) Fail(ctx context.Context, id string, errorMsg string, retryDelay time.Duration) error {
	f.fails = append(f.fails, failCall{id: id, msg: errorMsg, delay: retryDelay})
	return nil
}

func (f *fakeTaskFacade) HandleTimeouts(ctx context.Context) (int, error) {
	f.sweepCalls++
	return f.sweptN, nil
}

func (f *fakeTaskFacade) RequeueDead(ctx context.Context, queue string) (int, error) {
	return f.requeueN, nil
}

func (f *fakeTaskFacade) CountByStatus(ctx context.Context, queue string) (map[string]int64, error) {
	return f.counts, nil
}

func (f *fakeTaskFacade) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	return f.cleanedN, nil
}

func (f *fakeTaskFacade) ListDead(ctx context.Context, queue string, limit int) ([]model.QueueTask, error) {
	return nil, nil
}

func (f *fakeTaskFacade) ListActiveItems(ctx context.Context, queue string) ([]string, error) {
	return nil, nil
}

func (f *fakeTaskFacade) WithDB(db *gorm.DB) database.QueueTaskFacadeInterface {
	return f
}

func TestRetryBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	limit := time.Second

	tests := []struct {
		name       string
		retryCount int
		want       time.Duration
	}{
		{"first failure waits the base delay", 0, 100 * time.Millisecond},
		{"second failure doubles", 1, 200 * time.Millisecond},
		{"third failure doubles again", 2, 400 * time.Millisecond},
		{"fourth failure still below the cap", 3, 800 * time.Millisecond},
		{"growth stops at the cap", 4, time.Second},
		{"stays capped far beyond the budget", 30, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryBackoff(base, tt.retryCount, limit))
		})
	}
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildsight/antler/pkg/database/model"
)

func TestConsumerDrainsQueue(t *testing.T) {
	q := NewMemoryQueue(3)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Enqueue(ctx, "work", id))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	c := NewConsumer(q, "work", 2, 5*time.Millisecond, func(ctx context.Context, d *Delivery) {
		mu.Lock()
		seen[d.ItemID]++
		mu.Unlock()
		require.NoError(t, q.Ack(ctx, d))
	})

	c.Start(ctx)
	assert.Eventually(t, func() bool {
		stats, err := q.Stats(ctx, "work")
		return err == nil && stats[model.TaskStatusCompleted] == 5
	}, 2*time.Second, 5*time.Millisecond)
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s must be handled once", id)
	}
}

func TestConsumerStopWaitsForInflightWork(t *testing.T) {
	q := NewMemoryQueue(3)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "work", "slow"))

	started := make(chan struct{})
	var finished bool
	c := NewConsumer(q, "work", 1, 5*time.Millisecond, func(ctx context.Context, d *Delivery) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished = true
		_ = q.Ack(ctx, d)
	})

	c.Start(ctx)
	<-started
	c.Stop()

	assert.True(t, finished, "Stop must block until the handler returns")
}

func TestConsumerStopsOnContextCancel(t *testing.T) {
	q := NewMemoryQueue(3)
	ctx, cancel := context.WithCancel(context.Background())

	c := NewConsumer(q, "work", 2, 5*time.Millisecond, func(ctx context.Context, d *Delivery) {
		_ = q.Ack(ctx, d)
	})
	c.Start(ctx)
	cancel()
	c.Stop()
}

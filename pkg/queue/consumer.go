// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/wildsight/antler/pkg/logger/log"
	"github.com/wildsight/antler/pkg/utils/goroutineUtil"
)

// Consumer runs a fixed-size pool of reserve-process loops against one
// queue. The handler owns the delivery's disposition: it must ack, nack,
// or deliberately leave the item to time out. The consumer only releases
// reservations it never handed over, on shutdown.
type Consumer struct {
	queue  Queue
	name   string
	size   int
	poll   time.Duration
	handle func(ctx context.Context, d *Delivery)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer builds a pool of size workers over the named queue.
func NewConsumer(q Queue, name string, size int, poll time.Duration, handle func(ctx context.Context, d *Delivery)) *Consumer {
	if size <= 0 {
		size = 1
	}
	return &Consumer{
		queue:  q,
		name:   name,
		size:   size,
		poll:   poll,
		handle: handle,
		stopCh: make(chan struct{}),
	}
}

// Start launches the pool goroutines.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.size; i++ {
		c.wg.Add(1)
		goroutineUtil.RunGoroutineWithLog(func() {
			defer c.wg.Done()
			c.run(ctx)
		})
	}
	log.Infof("queue %s: started %d consumers", c.name, c.size)
}

// Stop drains the pool and blocks until every in-flight item finishes.
func (c *Consumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	log.Infof("queue %s: consumers stopped", c.name)
}

func (c *Consumer) run(ctx context.Context) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

// drain keeps reserving until the queue runs empty, so a burst of arrivals
// is not throttled to one item per poll tick.
func (c *Consumer) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		d, err := c.queue.Reserve(ctx, c.name)
		if err != nil {
			log.Errorf("queue %s: reserve: %v", c.name, err)
			return
		}
		if d == nil {
			return
		}

		select {
		case <-c.stopCh:
			// shutting down with an unprocessed reservation: hand it back
			// without charging the retry budget
			if rErr := c.queue.Release(ctx, d); rErr != nil {
				log.Errorf("queue %s: release task %s: %v", c.name, d.TaskID, rErr)
			}
			return
		default:
		}

		c.handle(ctx, d)
	}
}

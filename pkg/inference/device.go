// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import "context"

// DeviceSemaphore caps concurrent device work process-wide. Worker pool
// sizes bound queue parallelism; this bounds what actually reaches the
// accelerator at once.
type DeviceSemaphore struct {
	slots chan struct{}
}

func NewDeviceSemaphore(size int) *DeviceSemaphore {
	if size <= 0 {
		size = 1
	}
	return &DeviceSemaphore{slots: make(chan struct{}, size)}
}

// Acquire blocks until a slot frees or ctx expires. Time spent waiting here
// counts against the caller's per-item deadline.
func (s *DeviceSemaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DeviceSemaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}

// InUse reports how many slots are currently held.
func (s *DeviceSemaphore) InUse() int {
	return len(s.slots)
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	antlererrors "github.com/wildsight/antler/pkg/errors"
)

func TestModelRegistryMemoisesConstruction(t *testing.T) {
	var constructions atomic.Int64
	factory := func(role string) (Engine, error) {
		constructions.Add(1)
		return &StaticEngine{FixedEmbedding: []float32{1, 0}}, nil
	}
	r := NewModelRegistryWithFactory(factory, NewDeviceSemaphore(1), 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Engine(RoleEmbedder)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), constructions.Load())
}

func TestModelRegistryMemoisesFailure(t *testing.T) {
	var constructions atomic.Int64
	factory := func(role string) (Engine, error) {
		constructions.Add(1)
		return nil, errors.New("model file missing")
	}
	r := NewModelRegistryWithFactory(factory, NewDeviceSemaphore(1), 0)

	_, err1 := r.Engine(RoleDetector)
	_, err2 := r.Engine(RoleDetector)
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, int64(1), constructions.Load())
}

func TestModelRegistryWarm(t *testing.T) {
	t.Run("constructs every role", func(t *testing.T) {
		roles := make(map[string]bool)
		factory := func(role string) (Engine, error) {
			roles[role] = true
			return &StaticEngine{}, nil
		}
		r := NewModelRegistryWithFactory(factory, NewDeviceSemaphore(1), 2)

		require.NoError(t, r.Warm())
		assert.Equal(t, map[string]bool{
			"detector": true,
			"embedder": true,
			"aux0":     true,
			"aux1":     true,
		}, roles)
	})

	t.Run("broken role is fatal", func(t *testing.T) {
		factory := func(role string) (Engine, error) {
			if role == RoleEmbedder {
				return nil, errors.New("no such file")
			}
			return &StaticEngine{}, nil
		}
		r := NewModelRegistryWithFactory(factory, NewDeviceSemaphore(1), 0)

		err := r.Warm()
		require.Error(t, err)
		assert.Equal(t, antlererrors.KindFatal, antlererrors.Classify(err))
	})
}

func TestModelRegistryClose(t *testing.T) {
	eng := &StaticEngine{}
	factory := func(role string) (Engine, error) { return eng, nil }
	r := NewModelRegistryWithFactory(factory, NewDeviceSemaphore(1), 0)

	_, err := r.Engine(RoleDetector)
	require.NoError(t, err)

	r.Close()
	assert.True(t, eng.Closed())
}

func TestEmbedderRoles(t *testing.T) {
	r := NewModelRegistryWithFactory(nil, NewDeviceSemaphore(1), 2)
	assert.Equal(t, []string{"embedder", "aux0", "aux1"}, r.EmbedderRoles())
}

func TestGuardedEngineHonoursDeviceCap(t *testing.T) {
	block := make(chan struct{})
	eng := &StaticEngine{EmbedFunc: func(ctx context.Context, _ []byte) ([]float32, error) {
		<-block
		return []float32{1}, nil
	}}
	r := NewModelRegistryWithFactory(func(string) (Engine, error) { return eng, nil }, NewDeviceSemaphore(1), 0)

	guarded, err := r.Engine(RoleEmbedder)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = guarded.Embed(context.Background(), nil)
	}()

	// Wait until the first call holds the only device slot.
	require.Eventually(t, func() bool { return eng.EmbedCalls() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = guarded.Embed(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	<-done
}

func TestDeviceSemaphore(t *testing.T) {
	t.Run("caps concurrent holders", func(t *testing.T) {
		sem := NewDeviceSemaphore(2)
		require.NoError(t, sem.Acquire(context.Background()))
		require.NoError(t, sem.Acquire(context.Background()))
		assert.Equal(t, 2, sem.InUse())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, sem.Acquire(ctx), context.DeadlineExceeded)

		sem.Release()
		assert.Equal(t, 1, sem.InUse())
		require.NoError(t, sem.Acquire(context.Background()))
	})

	t.Run("release without holder does not block", func(t *testing.T) {
		sem := NewDeviceSemaphore(1)
		sem.Release()
		assert.Equal(t, 0, sem.InUse())
	})
}

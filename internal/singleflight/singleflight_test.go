package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoCollapsesConcurrentCalls(t *testing.T) {
	g := NewGroup()
	var executions atomic.Int64
	release := make(chan struct{})

	var wg sync.WaitGroup
	var sharedCount atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, shared, err := g.Do(context.Background(), "key", func() (interface{}, error) {
				executions.Add(1)
				<-release
				return 42, nil
			})
			require.NoError(t, err)
			assert.Equal(t, 42, val)
			if shared {
				sharedCount.Add(1)
			}
		}()
	}

	// wait until the owner registered, then release everyone
	require.Eventually(t, func() bool { return g.InFlight() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, executions.Load())
	assert.EqualValues(t, 9, sharedCount.Load())
	assert.Zero(t, g.InFlight())
}

func TestDoDistinctKeysRunIndependently(t *testing.T) {
	g := NewGroup()
	var executions atomic.Int64
	for _, key := range []string{"a", "b"} {
		_, shared, err := g.Do(context.Background(), key, func() (interface{}, error) {
			executions.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
		assert.False(t, shared)
	}
	assert.EqualValues(t, 2, executions.Load())
}

func TestDoPropagatesError(t *testing.T) {
	g := NewGroup()
	boom := errors.New("boom")
	_, _, err := g.Do(context.Background(), "key", func() (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestDoWaiterHonorsContext(t *testing.T) {
	g := NewGroup()
	release := make(chan struct{})
	defer close(release)

	go g.Do(context.Background(), "key", func() (interface{}, error) {
		<-release
		return nil, nil
	})
	require.Eventually(t, func() bool { return g.InFlight() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := g.Do(ctx, "key", func() (interface{}, error) {
		t.Fatal("joiner must not execute")
		return nil, nil
	})
	assert.True(t, shared)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvictStale(t *testing.T) {
	g := NewGroup()
	started := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return started }

	release := make(chan struct{})
	defer close(release)
	go g.Do(context.Background(), "stuck", func() (interface{}, error) {
		<-release
		return nil, nil
	})
	require.Eventually(t, func() bool { return g.InFlight() == 1 }, time.Second, time.Millisecond)

	// nothing stale yet
	assert.Zero(t, g.EvictStale(30*time.Second))

	g.now = func() time.Time { return started.Add(time.Minute) }
	assert.Equal(t, 1, g.EvictStale(30*time.Second))
	assert.Zero(t, g.InFlight())

	// a fresh caller for the same key starts its own computation
	done := make(chan struct{})
	go func() {
		defer close(done)
		val, shared, err := g.Do(context.Background(), "stuck", func() (interface{}, error) {
			return "fresh", nil
		})
		assert.NoError(t, err)
		assert.False(t, shared)
		assert.Equal(t, "fresh", val)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fresh caller blocked on the evicted entry")
	}
}

// Package singleflight collapses concurrent duplicate work on the same key
// into one computation. Unlike the x/sync primitive it tracks when each call
// started, so a watchdog can evict entries that never complete and later
// callers can start fresh instead of waiting on a stuck fetch forever.
package singleflight

import (
	"context"
	"sync"
	"time"
)

type call struct {
	done    chan struct{}
	val     interface{}
	err     error
	started time.Time
}

// Group coordinates in-flight calls keyed by string.
type Group struct {
	mu    sync.Mutex
	calls map[string]*call
	now   func() time.Time
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{
		calls: make(map[string]*call),
		now:   time.Now,
	}
}

// Do runs fn once per key across concurrent callers. The first caller
// executes fn; the rest wait for its result. shared reports whether the
// result came from another caller's execution. A cancelled context releases
// the waiter without affecting the in-flight call.
func (g *Group) Do(ctx context.Context, key string, fn func() (interface{}, error)) (val interface{}, shared bool, err error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{}), started: g.now()}
	g.calls[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	// Only remove our own entry; the watchdog may have replaced it.
	if cur, ok := g.calls[key]; ok && cur == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	return c.val, false, c.err
}

// EvictStale drops in-flight entries older than maxAge so a wedged call
// cannot block a key indefinitely. Returns the number of evicted entries.
func (g *Group) EvictStale(maxAge time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	evicted := 0
	cutoff := g.now().Add(-maxAge)
	for key, c := range g.calls {
		if c.started.Before(cutoff) {
			delete(g.calls, key)
			evicted++
		}
	}
	return evicted
}

// InFlight returns the number of keys currently being computed.
func (g *Group) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

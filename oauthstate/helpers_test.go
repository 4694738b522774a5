package oauthstate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// hangingBackend wraps a MemoryBackend. While down, every call blocks until
// its context is done, the way an unreachable Redis does behind a timeout.
type hangingBackend struct {
	inner  *MemoryBackend
	down   atomic.Bool
	probes atomic.Int64
}

func newHangingBackend(t *testing.T, clock *fakeClock) *hangingBackend {
	t.Helper()
	inner := NewMemoryBackend(WithMemoryClock(clock.Now), WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = inner.Close() })
	return &hangingBackend{inner: inner}
}

func (b *hangingBackend) wait(ctx context.Context) error {
	b.probes.Add(1)
	if !b.down.Load() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *hangingBackend) Put(ctx context.Context, state *State) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	return b.inner.Put(ctx, state)
}

func (b *hangingBackend) Get(ctx context.Context, token string) (*State, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return b.inner.Get(ctx, token)
}

func (b *hangingBackend) Delete(ctx context.Context, token string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	return b.inner.Delete(ctx, token)
}

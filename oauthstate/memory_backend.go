package oauthstate

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMemoryCapacity bounds the fallback map.
	DefaultMemoryCapacity = 10000
	// DefaultSweepInterval is how often expired fallback states are purged.
	DefaultSweepInterval = time.Minute
)

// MemoryBackend is the in-process fallback tier. It is bounded, sweeps
// expired entries in the background, and must be closed by its owner.
type MemoryBackend struct {
	mu       sync.Mutex
	states   map[string]*State
	capacity int
	now      func() time.Time

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
	closeOnce     sync.Once
}

// MemoryOption configures a [MemoryBackend].
type MemoryOption func(*MemoryBackend)

// WithCapacity caps the number of live states held.
func WithCapacity(n int) MemoryOption {
	return func(b *MemoryBackend) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(b *MemoryBackend) {
		if d > 0 {
			b.sweepInterval = d
		}
	}
}

// WithMemoryClock overrides the clock used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		if now != nil {
			b.now = now
		}
	}
}

// NewMemoryBackend creates the fallback tier and starts its sweep goroutine.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		states:        make(map[string]*State),
		capacity:      DefaultMemoryCapacity,
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.sweepLoop()
	return b
}

// Close stops the sweep goroutine and waits for it to exit.
func (b *MemoryBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopSweep)
		<-b.sweepDone
	})
	return nil
}

func (b *MemoryBackend) sweepLoop() {
	defer close(b.sweepDone)

	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopSweep:
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

// Sweep removes expired states and reports how many were dropped. Consumed
// markers stay until their own expiry.
func (b *MemoryBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sweepLocked(b.now())
}

func (b *MemoryBackend) sweepLocked(now time.Time) int {
	removed := 0
	for token, st := range b.states {
		if !now.Before(st.ExpiresAt) {
			delete(b.states, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored states, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.states)
}

func (b *MemoryBackend) Put(_ context.Context, state *State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.states[state.Token]; !exists && len(b.states) >= b.capacity {
		if b.sweepLocked(b.now()) == 0 {
			return ErrCapacity
		}
	}
	cp := *state
	b.states[state.Token] = &cp
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, token string) (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[token]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (b *MemoryBackend) Delete(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, token)
	return nil
}

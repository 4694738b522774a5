package oauthstate

import (
	"sync"
	"time"
)

// BreakerState is the circuit state guarding the primary tier.
type BreakerState uint8

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker decides, per call, whether the primary tier may be contacted.
//
// Closed lets every caller through. A reported failure opens the circuit
// until nextRetryAt. The first caller at or after nextRetryAt moves it to
// HalfOpen and becomes the only probe; everyone else is refused until the
// probe reports back.
type Breaker struct {
	mu            sync.Mutex
	state         BreakerState
	cooldown      time.Duration
	nextRetryAt   time.Time
	lastCheckedAt time.Time
	now           func() time.Time
	onChange      func(from, to BreakerState)
}

// NewBreaker returns a closed breaker. A nil now uses time.Now.
func NewBreaker(cooldown time.Duration, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{cooldown: cooldown, now: now}
}

// OnChange registers a callback invoked after every state transition.
func (b *Breaker) OnChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow reports whether the caller may attempt the primary now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	switch b.state {
	case BreakerClosed:
		b.mu.Unlock()
		return true
	case BreakerOpen:
		if b.now().Before(b.nextRetryAt) {
			b.mu.Unlock()
			return false
		}
		notify := b.transitionLocked(BreakerHalfOpen)
		b.mu.Unlock()
		notify()
		return true
	default:
		b.mu.Unlock()
		return false
	}
}

// Success records a healthy primary response.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.lastCheckedAt = b.now()
	notify := b.transitionLocked(BreakerClosed)
	b.mu.Unlock()
	notify()
}

// Failure records a failed or timed-out primary call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	now := b.now()
	b.lastCheckedAt = now
	b.nextRetryAt = now.Add(b.cooldown)
	notify := b.transitionLocked(BreakerOpen)
	b.mu.Unlock()
	notify()
}

// Abort gives up a probe without a verdict. A half-open breaker returns to
// open with its retry time unchanged, so the next caller probes again.
func (b *Breaker) Abort() {
	b.mu.Lock()
	if b.state != BreakerHalfOpen {
		b.mu.Unlock()
		return
	}
	notify := b.transitionLocked(BreakerOpen)
	b.mu.Unlock()
	notify()
}

// State returns the current state without side effects.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastCheckedAt returns when the primary last reported success or failure.
func (b *Breaker) LastCheckedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCheckedAt
}

// NextRetryAt returns the earliest time an open breaker will allow a probe.
func (b *Breaker) NextRetryAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextRetryAt
}

func (b *Breaker) transitionLocked(to BreakerState) func() {
	from := b.state
	b.state = to
	fn := b.onChange
	if from == to || fn == nil {
		return func() {}
	}
	return func() { fn(from, to) }
}

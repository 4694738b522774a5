package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls buffering. With DropIfFull unset, Emit waits for room
// until its context ends.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher moves events off the request path onto a single goroutine
// that feeds the sink. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink  Sink
	queue chan Event
	wait  bool

	seq     atomic.Uint64
	dropped atomic.Uint64

	stopping chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = DiscardSink{}
	}
	d := &Dispatcher{
		sink:     sink,
		queue:    make(chan Event, max(cfg.BufferSize, 1)),
		wait:     !cfg.DropIfFull,
		stopping: make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stopping:
			for len(d.queue) > 0 {
				d.deliver(<-d.queue)
			}
			return
		}
	}
}

// deliver isolates sink panics; only the offending event is lost.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if recover() != nil {
			d.dropped.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit stamps ev with the next sequence number and queues it. Events
// emitted after Shutdown are ignored.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	select {
	case <-d.stopping:
		return
	default:
	}
	ev.Seq = d.seq.Add(1)

	if !d.wait {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-d.stopping:
		d.dropped.Add(1)
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Shutdown stops intake and waits until queued events reach the sink or
// ctx ends. It is safe to call more than once.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.stopOnce.Do(func() { close(d.stopping) })
	select {
	case <-d.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

// Dropped counts events that were stamped but never delivered: a full
// queue, a cancelled or interrupted Emit, or a panicking sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

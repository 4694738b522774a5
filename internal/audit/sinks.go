package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Sink consumes events on the dispatcher goroutine. Emit must not retain
// ctx beyond the call.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// DiscardSink drops everything.
type DiscardSink struct{}

func (DiscardSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer goroutine. A full channel blocks
// the dispatcher, which then applies its own overflow policy.
type ChannelSink struct {
	out chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{out: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.out <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.out }

// JSONWriterSink writes newline-delimited JSON. Encoding errors are
// swallowed; the writer is the only place they could go.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		w = io.Discard
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONWriterSink{enc: enc}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

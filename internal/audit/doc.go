// Package audit carries security events from the engine to a pluggable
// [Sink] without blocking request paths.
//
// The engine decides what to emit. This package only orders, buffers and
// delivers: a [Dispatcher] numbers each event, queues it, and feeds the sink
// from one goroutine. Sinks shipped here write to a channel, to JSON lines,
// or to a zap logger.
package audit

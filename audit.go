package eduAuth

import (
	"io"

	"github.com/MrEthical07/eduAuth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant outcome. It never carries token
// material; refresh and state tokens appear in logs by suffix only.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// DiscardSink drops every event.
type DiscardSink = audit.DiscardSink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = audit.SinkFunc

type ChannelSink = audit.ChannelSink

type JSONWriterSink = audit.JSONWriterSink

// ZapSink logs each event through zap: failures at warn, successes at info.
type ZapSink = audit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}

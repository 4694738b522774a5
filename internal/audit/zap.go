package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapSink writes each event as one structured log entry. Failed events are
// logged at warn level, successful ones at info.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	fields := make([]zap.Field, 0, 6+len(event.Metadata))
	fields = append(fields,
		zap.Uint64("seq", event.Seq),
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	)
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Provider != "" {
		fields = append(fields, zap.String("provider", event.Provider))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error_code", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String(k, v))
	}

	if event.Success {
		s.logger.Info(event.Type, fields...)
		return
	}
	s.logger.Warn(event.Type, fields...)
}

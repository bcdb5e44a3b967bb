package notify

import (
	"context"

	"go.uber.org/zap"
)

type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("signals")}
}

func (l *Log) Emit(_ context.Context, signal Signal) {
	fields := []zap.Field{zap.String("kind", string(signal.Kind))}
	if signal.Remaining != nil {
		fields = append(fields, zap.Int("remaining", *signal.Remaining))
	}
	if signal.PendingID > 0 {
		fields = append(fields, zap.Int64("pending_id", signal.PendingID))
	}
	if signal.Reason != "" {
		fields = append(fields, zap.String("reason", signal.Reason))
	}
	for name, count := range signal.Counts {
		fields = append(fields, zap.Int(name, count))
	}

	switch signal.Kind {
	case RefreshFailed, EnqueueRejected:
		l.logger.Warn("sync signal", fields...)
	default:
		l.logger.Info("sync signal", fields...)
	}
}

package audit

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/logging"
	"github.com/rl1809/wip-inventory/internal/port"
)

var _ port.AuditSink = (*LogSink)(nil)

// LogSink writes every audit event to the logger. Business rejections are
// logged at info, infrastructure faults at error. Repeats of the same fault
// inside the dedup window are demoted to debug.
type LogSink struct {
	logger *zap.Logger
	dedup  DedupCache
}

func NewLogSink(logger *zap.Logger, dedup DedupCache) *LogSink {
	return &LogSink{logger: logger, dedup: dedup}
}

func (s *LogSink) Record(ctx context.Context, event port.AuditEvent) error {
	log := logging.L(ctx, s.logger)
	fields := eventFields(event)

	if !event.Failed() {
		log.Info("inventory operation completed", fields...)
		return nil
	}

	fields = append(fields, zap.Error(event.Err))
	switch event.Kind {
	case domain.KindValidationFailed:
		log.Info("inventory operation rejected", fields...)
		return nil
	case domain.KindInsufficientQuantity:
		log.Info("inventory operation rejected: insufficient quantity", fields...)
		return nil
	}

	level := zapcore.ErrorLevel
	if event.Kind == "" {
		level = zapcore.WarnLevel
	}
	if s.repeated(ctx, event) {
		level = zapcore.DebugLevel
		fields = append(fields, zap.Bool("repeated", true))
	}
	log.Log(level, "inventory operation failed", fields...)
	return nil
}

// repeated reports whether the same fault was logged inside the dedup window.
// A dedup failure counts as a first occurrence.
func (s *LogSink) repeated(ctx context.Context, event port.AuditEvent) bool {
	if s.dedup == nil {
		return false
	}
	seen, err := s.dedup.Seen(ctx, event.Operation+"|"+string(event.Kind)+"|"+event.Err.Error())
	if err != nil {
		s.logger.Debug("audit dedup unavailable", zap.Error(err))
		return false
	}
	return seen
}

func eventFields(event port.AuditEvent) []zap.Field {
	fields := []zap.Field{
		zap.String("operation", event.Operation),
		zap.String("user_id", event.UserID),
		zap.String("outcome", outcome(event)),
	}
	if r := event.Result; r != nil {
		fields = append(fields,
			zap.String("transaction_id", r.TransactionID),
			zap.Int("requested", r.OriginalQuantity),
			zap.Int("transferred", r.TransferredQuantity),
			zap.Bool("was_split", r.WasSplit),
		)
	}
	if tx := event.Transaction; tx != nil && event.Result == nil {
		fields = append(fields,
			zap.String("transaction_id", tx.ID),
			zap.String("type", string(tx.Type)),
			zap.Int("quantity", tx.Quantity),
		)
	}
	if len(event.Context) > 0 {
		fields = append(fields, zap.Any("context", event.Context))
	}
	return fields
}

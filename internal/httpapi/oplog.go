package httpapi

import (
	"context"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapOperationLogger writes booking operations to zap.
type ZapOperationLogger struct {
	logger *zap.Logger
}

func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

func (operationLogger *ZapOperationLogger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.Email.IsZero() {
		fields = append(fields, zap.String("email", entry.Email.String()))
	}
	for _, field := range []struct{ key, value string }{
		{"course_id", entry.CourseID},
		{"booking_id", entry.BookingID},
		{"entry_id", entry.EntryID},
		{"pass_id", entry.PassID},
		{"outcome", entry.Outcome},
	} {
		if field.value != "" {
			fields = append(fields, zap.String(field.key, field.value))
		}
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	level := zapcore.InfoLevel
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error), zap.String("error_kind", string(booking.KindOf(entry.Error))))
		level = levelForError(entry.Error)
	}
	operationLogger.logger.Log(level, "booking operation", fields...)
}

func levelForError(err error) zapcore.Level {
	switch booking.KindOf(err) {
	case booking.KindMismatch:
		return zapcore.WarnLevel
	case booking.KindInternal, booking.KindTransient:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

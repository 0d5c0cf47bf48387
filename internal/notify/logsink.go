package notify

import (
	"context"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"go.uber.org/zap"
)

// LogSink records notifications and sheet rows in the log instead of
// delivering them. Used when no broker or spreadsheet is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (sink *LogSink) Send(ctx context.Context, notification booking.Notification) error {
	sink.logger.Info("notification",
		zap.String("to", notification.To.String()),
		zap.String("template", notification.Template),
		zap.Any("data", notification.Data),
	)
	return nil
}

func (sink *LogSink) AppendRow(ctx context.Context, row booking.SheetRow) error {
	sink.logger.Info("sheet row", zap.Strings("values", row.Values))
	return nil
}

// Package dispatch drains the booking outbox into the notification and
// spreadsheet sinks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"go.uber.org/zap"
)

const (
	defaultInterval    = 5 * time.Second
	defaultBatchSize   = 50
	defaultMaxAttempts = 10
	defaultLease       = time.Minute
	defaultRetryBase   = 10 * time.Second
	maxRetryDelay      = time.Hour
)

var (
	ErrInvalidConfig  = errors.New("dispatch: invalid config")
	errUnknownMessage = errors.New("dispatch: message has no payload for its kind")
)

// Outbox is the slice of the store the dispatcher needs.
type Outbox interface {
	ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]booking.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, messageID string) error
	MarkOutboxFailed(ctx context.Context, messageID string, cause error, retryAt time.Time, terminal bool) error
}

// NotificationSender delivers a templated notification.
type NotificationSender interface {
	Send(ctx context.Context, notification booking.Notification) error
}

// RowAppender appends one row to the bookings spreadsheet.
type RowAppender interface {
	AppendRow(ctx context.Context, row booking.SheetRow) error
}

// Config tunes the dispatch loop. Zero values fall back to defaults.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
	RetryBase   time.Duration
}

func (config Config) withDefaults() Config {
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.Lease <= 0 {
		config.Lease = defaultLease
	}
	if config.RetryBase <= 0 {
		config.RetryBase = defaultRetryBase
	}
	return config
}

// Dispatcher periodically claims outbox messages and hands them to sinks.
type Dispatcher struct {
	outbox   Outbox
	sender   NotificationSender
	appender RowAppender
	logger   *zap.Logger
	config   Config
	nowFn    func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the dispatcher clock.
func WithClock(now func() time.Time) Option {
	return func(dispatcher *Dispatcher) {
		if now != nil {
			dispatcher.nowFn = now
		}
	}
}

// New constructs a Dispatcher.
func New(outbox Outbox, sender NotificationSender, appender RowAppender, logger *zap.Logger, config Config, options ...Option) (*Dispatcher, error) {
	if outbox == nil || sender == nil || appender == nil {
		return nil, fmt.Errorf("%w: outbox, sender and appender are required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := &Dispatcher{
		outbox:   outbox,
		sender:   sender,
		appender: appender,
		logger:   logger,
		config:   config.withDefaults(),
		nowFn:    time.Now,
	}
	for _, option := range options {
		option(dispatcher)
	}
	return dispatcher, nil
}

// Run dispatches until ctx is cancelled.
func (dispatcher *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(dispatcher.config.Interval)
	defer ticker.Stop()
	for {
		if _, err := dispatcher.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			dispatcher.logger.Warn("outbox claim failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims one batch and delivers it, returning how many messages
// were delivered.
func (dispatcher *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	messages, err := dispatcher.outbox.ClaimOutbox(ctx, dispatcher.config.BatchSize, dispatcher.config.Lease)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, message := range messages {
		if ctx.Err() != nil {
			break
		}
		deliverErr := dispatcher.deliver(ctx, message)
		if deliverErr == nil {
			if err := dispatcher.outbox.MarkOutboxSent(ctx, message.ID); err != nil {
				dispatcher.logger.Error("mark outbox sent failed", zap.String("message_id", message.ID), zap.Error(err))
				continue
			}
			delivered++
			continue
		}
		dispatcher.recordFailure(ctx, message, deliverErr)
	}
	return delivered, nil
}

func (dispatcher *Dispatcher) deliver(ctx context.Context, message booking.OutboxMessage) error {
	switch {
	case message.Kind == booking.OutboxKindEmail && message.Notification != nil:
		return dispatcher.sender.Send(ctx, *message.Notification)
	case message.Kind == booking.OutboxKindSheetRow && message.Row != nil:
		return dispatcher.appender.AppendRow(ctx, *message.Row)
	default:
		return errUnknownMessage
	}
}

func (dispatcher *Dispatcher) recordFailure(ctx context.Context, message booking.OutboxMessage, cause error) {
	terminal := errors.Is(cause, errUnknownMessage) || message.Attempts >= dispatcher.config.MaxAttempts
	retryAt := dispatcher.nowFn().Add(dispatcher.retryDelay(message.Attempts))
	fields := []zap.Field{
		zap.String("message_id", message.ID),
		zap.String("kind", string(message.Kind)),
		zap.Int("attempts", message.Attempts),
		zap.Bool("terminal", terminal),
		zap.Error(cause),
	}
	if terminal {
		dispatcher.logger.Error("outbox delivery abandoned", fields...)
	} else {
		dispatcher.logger.Warn("outbox delivery failed", fields...)
	}
	if err := dispatcher.outbox.MarkOutboxFailed(ctx, message.ID, cause, retryAt, terminal); err != nil {
		dispatcher.logger.Error("mark outbox failed", zap.String("message_id", message.ID), zap.Error(err))
	}
}

// retryDelay doubles per attempt up to an hour.
func (dispatcher *Dispatcher) retryDelay(attempts int) time.Duration {
	delay := dispatcher.config.RetryBase
	for attempt := 1; attempt < attempts; attempt++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/internal/calendarsync"
	"github.com/MarkoPoloResearchLab/coursebook/internal/httpapi"
	"github.com/MarkoPoloResearchLab/coursebook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"go.uber.org/zap"
)

// application holds the store and service shared by every command.
type application struct {
	logger  *zap.Logger
	store   *gormstore.Store
	service *booking.Service
	cleanup func() error
}

func openApplication(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger, options ...booking.ServiceOption) (*application, error) {
	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	if err := prepareSchema(gormDB); err != nil {
		_ = cleanup()
		return nil, err
	}
	logger.Info("database ready", zap.String("driver", driver))

	store := gormstore.New(gormDB, gormstore.WithMaxAttempts(cfg.TxMaxAttempts))
	serviceOptions := []booking.ServiceOption{
		booking.WithOperationLogger(httpapi.NewZapOperationLogger(logger)),
		booking.WithCurrency(cfg.Currency),
	}
	if cfg.BookingURL != "" {
		serviceOptions = append(serviceOptions, booking.WithBookingURL(cfg.BookingURL))
	}
	service, err := booking.NewService(store, time.Now, append(serviceOptions, options...)...)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("booking service init: %w", err)
	}
	return &application{logger: logger, store: store, service: service, cleanup: cleanup}, nil
}

func (app *application) Close() {
	if err := app.cleanup(); err != nil {
		app.logger.Warn("database close failed", zap.Error(err))
	}
}

func (app *application) newCalendarSyncer(ctx context.Context, cfg *runtimeConfig) (*calendarsync.Syncer, error) {
	source, err := calendarsync.NewGoogleSource(ctx, []byte(cfg.GoogleCredentials), cfg.GoogleCalendarID)
	if err != nil {
		return nil, err
	}
	return calendarsync.NewSyncer(source, app.service, app.logger)
}

func newLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return logger, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/internal/calendarsync"
	"github.com/MarkoPoloResearchLab/coursebook/internal/dispatch"
	"github.com/MarkoPoloResearchLab/coursebook/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/coursebook/internal/httpapi"
	"github.com/MarkoPoloResearchLab/coursebook/internal/notify"
	"github.com/MarkoPoloResearchLab/coursebook/internal/payments"
	"github.com/MarkoPoloResearchLab/coursebook/internal/sheets"
	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func runServe(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var serviceOptions []booking.ServiceOption
	if cfg.StripeSecretKey != "" {
		gateway, err := payments.NewGateway(cfg.StripeSecretKey, payments.WithSubscriptionPrice(cfg.StripePriceID))
		if err != nil {
			return err
		}
		serviceOptions = append(serviceOptions, booking.WithPaymentGateway(gateway))
	} else {
		logger.Warn("stripe secret key not set; card bookings with a price will fail")
	}
	if cfg.StripeSecretKey != "" && cfg.StripePriceID == "" {
		logger.Warn("stripe subscription price not set; subscription purchases will not renew")
	}
	app, err := openApplication(ctx, cfg, logger, serviceOptions...)
	if err != nil {
		return err
	}
	defer app.Close()

	logSink := notify.NewLogSink(logger)
	var sender dispatch.NotificationSender = logSink
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()
		sender = publisher
	}
	var appender dispatch.RowAppender = logSink
	if cfg.GoogleSheetID != "" {
		sheetAppender, err := sheets.NewAppender(ctx, []byte(cfg.GoogleCredentials), cfg.GoogleSheetID, sheets.DefaultSheetName)
		if err != nil {
			return err
		}
		appender = sheetAppender
	}

	httpOptions := []httpapi.Option{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable; availability cache degraded", zap.Error(err))
		}
		httpOptions = append(httpOptions, httpapi.WithAvailabilityCache(httpapi.NewRedisCache(redisClient)))
	}
	if cfg.StripeWebhookSecret != "" {
		processor, err := payments.NewWebhookProcessor(cfg.StripeWebhookSecret, app.service, logger)
		if err != nil {
			return err
		}
		httpOptions = append(httpOptions, httpapi.WithWebhookProcessor(processor))
	}
	httpServer, err := httpapi.NewServer(cfg.httpConfig(), app.service, logger, httpOptions...)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.New(app.store, sender, appender, logger, dispatch.Config{
		Interval:    cfg.DispatchInterval,
		BatchSize:   cfg.DispatchBatchSize,
		MaxAttempts: cfg.DispatchMaxAttempts,
	})
	if err != nil {
		return err
	}

	var syncer *calendarsync.Syncer
	if cfg.GoogleCalendarID != "" && cfg.CalendarSyncInterval > 0 {
		syncer, err = app.newCalendarSyncer(ctx, cfg)
		if err != nil {
			return err
		}
	}

	grpcServer, healthServer := grpcserver.NewServer(grpcserver.NewBookingServiceServer(app.service), logger)
	listener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.HTTPListenAddr, httpServer.Router(), logger)
	})
	group.Go(func() error {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		if serveErr := grpcServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		grpcserver.GracefulShutdown(grpcServer, healthServer)
		return nil
	})
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})
	if syncer != nil {
		group.Go(func() error {
			return runCalendarSync(groupCtx, syncer, cfg.CalendarSyncInterval, logger)
		})
	}
	return group.Wait()
}

// runCalendarSync syncs once at startup and then every interval. Sync
// failures are logged and retried on the next tick.
func runCalendarSync(ctx context.Context, syncer *calendarsync.Syncer, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		result, err := syncer.Sync(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Warn("calendar sync failed", zap.Error(err))
		} else if err == nil {
			logger.Info("calendar synced",
				zap.Int("synced", result.Synced),
				zap.Int("cancelled", result.Cancelled),
				zap.Int("skipped", result.Skipped),
				zap.Int("failed", result.Failed),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

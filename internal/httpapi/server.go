// Package httpapi exposes the booking core over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/internal/payments"
	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// BookingService is the booking core as seen by the HTTP handlers.
type BookingService interface {
	ListAvailability(ctx context.Context, from time.Time, limit int) ([]booking.Availability, error)
	GetAvailability(ctx context.Context, courseID string) (booking.Availability, error)
	Reserve(ctx context.Context, request booking.ReserveRequest) (booking.ReserveResult, error)
	ConfirmPayment(ctx context.Context, confirmation booking.PaymentConfirmation) (booking.ConfirmResult, error)
	CancelBooking(ctx context.Context, bookingID string, reason string) (booking.CancelResult, error)
	TransferBooking(ctx context.Context, bookingID string, newCourseID string, email booking.Email) (booking.TransferResult, error)
	CheckActivePass(ctx context.Context, email booking.Email) (booking.PassReport, error)
	ListPasses(ctx context.Context, email booking.Email) ([]booking.Pass, error)
	GetPosition(ctx context.Context, email booking.Email, courseID string) (booking.WaitlistPosition, error)
	RemoveFromWaitlist(ctx context.Context, entryID string, email booking.Email) error
}

// WebhookProcessor applies verified payment provider events.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (payments.WebhookOutcome, error)
}

// Server wires handlers to the booking core.
type Server struct {
	cfg      Config
	service  BookingService
	webhooks WebhookProcessor
	cache    AvailabilityCache
	limiter  *RateLimiter
	logger   *zap.Logger
	nowFn    func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithAvailabilityCache enables response caching for availability reads.
func WithAvailabilityCache(cache AvailabilityCache) Option {
	return func(server *Server) {
		if cache != nil {
			server.cache = cache
		}
	}
}

// WithWebhookProcessor enables the payment webhook endpoint.
func WithWebhookProcessor(processor WebhookProcessor) Option {
	return func(server *Server) {
		server.webhooks = processor
	}
}

func WithClock(now func() time.Time) Option {
	return func(server *Server) {
		if now != nil {
			server.nowFn = now
		}
	}
}

// NewServer validates cfg and builds a Server.
func NewServer(cfg Config, service BookingService, logger *zap.Logger, options ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("httpapi: booking service is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{
		cfg:     cfg,
		service: service,
		cache:   noopCache{},
		limiter: NewRateLimiter(cfg.ReserveRatePerMinute, cfg.ReserveBurst),
		logger:  logger,
		nowFn:   time.Now,
	}
	for _, option := range options {
		option(server)
	}
	return server, nil
}

// Router builds the gin engine.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/courses", server.handleListCourses)
	api.GET("/courses/:id/availability", server.handleAvailability)
	api.POST("/bookings", server.limiter.Middleware(), server.handleReserve)
	api.POST("/bookings/:id/confirm", server.handleConfirm)
	api.POST("/bookings/:id/cancel", server.handleCancel)
	api.POST("/bookings/:id/transfer", server.handleTransfer)
	api.GET("/passes", server.handleCheckPass)
	api.GET("/passes/history", server.handlePassHistory)
	api.GET("/waitlist/position", server.handleWaitlistPosition)
	api.DELETE("/waitlist/:id", server.handleRemoveFromWaitlist)
	api.POST("/webhooks/stripe", server.handleStripeWebhook)

	return router
}

// Run serves handler on listenAddr until ctx is cancelled.
func Run(ctx context.Context, listenAddr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", listenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const stripeSignatureHeader = "Stripe-Signature"

func (server *Server) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), server.cfg.RequestTimeout)
}

// fail logs unexpected failures and writes the error envelope.
func (server *Server) fail(ctx *gin.Context, operation string, err error) {
	if statusForError(err) >= http.StatusInternalServerError {
		server.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	}
	respondError(ctx, err)
}

func (server *Server) handleListCourses(ctx *gin.Context) {
	from := server.nowFn()
	limit := defaultCourseListLimit
	cacheable := true
	if raw := ctx.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "from must be RFC3339"))
			return
		}
		from = parsed
		cacheable = false
	}
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "limit must be a positive integer"))
			return
		}
		limit = parsed
		cacheable = false
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	if cacheable && server.serveCached(ctx, requestCtx, cacheKeyCourseList) {
		return
	}
	courses, err := server.service.ListAvailability(requestCtx, from, limit)
	if err != nil {
		server.fail(ctx, "list_courses", err)
		return
	}
	payloads := make([]availabilityPayload, 0, len(courses))
	for _, course := range courses {
		payloads = append(payloads, newAvailabilityPayload(course))
	}
	body := gin.H{"courses": payloads}
	if cacheable {
		server.storeCached(requestCtx, cacheKeyCourseList, body)
	}
	ctx.JSON(http.StatusOK, body)
}

func (server *Server) handleAvailability(ctx *gin.Context) {
	courseID := ctx.Param("id")
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	key := courseCacheKey(courseID)
	if server.serveCached(ctx, requestCtx, key) {
		return
	}
	availability, err := server.service.GetAvailability(requestCtx, courseID)
	if err != nil {
		server.fail(ctx, "get_availability", err)
		return
	}
	payload := newAvailabilityPayload(availability)
	server.storeCached(requestCtx, key, payload)
	ctx.JSON(http.StatusOK, payload)
}

func (server *Server) handleReserve(ctx *gin.Context) {
	var request reserveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	reserve, err := request.toDomain()
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.service.Reserve(requestCtx, reserve)
	if err != nil {
		server.fail(ctx, "reserve", err)
		return
	}
	server.invalidate(requestCtx, reserve.CourseID)
	status := http.StatusCreated
	if result.Outcome == booking.OutcomeWaitlisted {
		status = http.StatusAccepted
	}
	ctx.JSON(status, newReservePayload(result))
}

func (request reserveRequest) toDomain() (booking.ReserveRequest, error) {
	email, err := booking.NewEmail(request.Email)
	if err != nil {
		return booking.ReserveRequest{}, err
	}
	method, err := booking.ParsePaymentMethod(request.PaymentMethod)
	if err != nil {
		return booking.ReserveRequest{}, err
	}
	pricing, err := booking.ParsePricingOption(request.PricingOption)
	if err != nil {
		return booking.ReserveRequest{}, err
	}
	return booking.ReserveRequest{
		CourseID: strings.TrimSpace(request.CourseID),
		Customer: booking.Customer{
			Email:     email,
			FirstName: strings.TrimSpace(request.FirstName),
			LastName:  strings.TrimSpace(request.LastName),
			Phone:     strings.TrimSpace(request.Phone),
		},
		PaymentMethod: method,
		PricingOption: pricing,
	}, nil
}

func (server *Server) handleConfirm(ctx *gin.Context) {
	var request confirmRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.service.ConfirmPayment(requestCtx, booking.PaymentConfirmation{
		BookingID:             ctx.Param("id"),
		PaymentReference:      request.PaymentReference,
		SubscriptionReference: request.SubscriptionReference,
	})
	if err != nil {
		server.fail(ctx, "confirm_payment", err)
		return
	}
	server.invalidate(requestCtx, result.CourseID)
	ctx.JSON(http.StatusOK, gin.H{
		"bookingId":        result.BookingID,
		"courseId":         result.CourseID,
		"status":           result.Status,
		"alreadyConfirmed": result.AlreadyConfirmed,
		"passId":           result.PassID,
	})
}

func (server *Server) handleCancel(ctx *gin.Context) {
	var request cancelRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.service.CancelBooking(requestCtx, ctx.Param("id"), request.Reason)
	if err != nil {
		server.fail(ctx, "cancel_booking", err)
		return
	}
	server.invalidate(requestCtx, result.CourseID)
	ctx.JSON(http.StatusOK, gin.H{
		"bookingId":       result.BookingID,
		"courseId":        result.CourseID,
		"promotedEntryId": result.PromotedEntryID,
	})
}

func (server *Server) handleTransfer(ctx *gin.Context) {
	var request transferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	email, err := booking.NewEmail(request.Email)
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.service.TransferBooking(requestCtx, ctx.Param("id"), strings.TrimSpace(request.NewCourseID), email)
	if err != nil {
		server.fail(ctx, "transfer_booking", err)
		return
	}
	server.invalidate(requestCtx, result.OldCourseID, result.NewCourseID)
	ctx.JSON(http.StatusOK, gin.H{
		"oldBookingId":    result.OldBookingID,
		"newBookingId":    result.NewBookingID,
		"oldCourseId":     result.OldCourseID,
		"newCourseId":     result.NewCourseID,
		"promotedEntryId": result.PromotedEntryID,
	})
}

func (server *Server) handleCheckPass(ctx *gin.Context) {
	email, err := booking.NewEmail(ctx.Query("email"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	report, err := server.service.CheckActivePass(requestCtx, email)
	if err != nil {
		server.fail(ctx, "check_pass", err)
		return
	}
	ctx.JSON(http.StatusOK, newPassReportPayload(report))
}

func (server *Server) handlePassHistory(ctx *gin.Context) {
	email, err := booking.NewEmail(ctx.Query("email"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	passes, err := server.service.ListPasses(requestCtx, email)
	if err != nil {
		server.fail(ctx, "list_passes", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"passes": newPassPayloads(passes)})
}

func (server *Server) handleWaitlistPosition(ctx *gin.Context) {
	email, err := booking.NewEmail(ctx.Query("email"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	position, err := server.service.GetPosition(requestCtx, email, ctx.Query("courseId"))
	if err != nil {
		server.fail(ctx, "waitlist_position", err)
		return
	}
	ctx.JSON(http.StatusOK, waitlistPositionPayload{
		EntryID:  position.Entry.ID,
		CourseID: position.Entry.CourseID,
		Status:   string(position.Entry.Status),
		Position: position.Position,
		Waiting:  position.Waiting,
	})
}

func (server *Server) handleRemoveFromWaitlist(ctx *gin.Context) {
	email, err := booking.NewEmail(ctx.Query("email"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	if err := server.service.RemoveFromWaitlist(requestCtx, ctx.Param("id"), email); err != nil {
		server.fail(ctx, "remove_from_waitlist", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (server *Server) handleStripeWebhook(ctx *gin.Context) {
	if server.webhooks == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("webhooks_disabled", "payment webhooks are not configured"))
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		ctx.JSON(http.StatusRequestEntityTooLarge, errorResponse("invalid_payload", "webhook body too large"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	outcome, err := server.webhooks.Process(requestCtx, payload, ctx.GetHeader(stripeSignatureHeader))
	if err != nil {
		server.logger.Warn("webhook rejected", zap.String("event_id", outcome.EventID), zap.String("event_type", outcome.EventType), zap.Error(err))
		server.fail(ctx, "stripe_webhook", err)
		return
	}
	if outcome.Handled {
		server.invalidate(requestCtx, outcome.CourseID)
	}
	ctx.JSON(http.StatusOK, gin.H{"received": true, "handled": outcome.Handled, "detail": outcome.Detail})
}

// serveCached writes a cached body and reports whether it did. Cache errors
// fall through to the service.
func (server *Server) serveCached(ctx *gin.Context, requestCtx context.Context, key string) bool {
	cached, ok, err := server.cache.Get(requestCtx, key)
	if err != nil {
		server.logger.Warn("availability cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", cached)
	return true
}

func (server *Server) storeCached(requestCtx context.Context, key string, body any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := server.cache.Set(requestCtx, key, encoded, server.cfg.AvailabilityCacheTTL); err != nil {
		server.logger.Warn("availability cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (server *Server) invalidate(requestCtx context.Context, courseIDs ...string) {
	if err := server.cache.Delete(requestCtx, invalidationKeys(courseIDs...)...); err != nil {
		server.logger.Warn("availability cache invalidation failed", zap.Error(err))
	}
}

package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// BookingCore is the part of the booking service exposed over gRPC.
type BookingCore interface {
	Reserve(ctx context.Context, request booking.ReserveRequest) (booking.ReserveResult, error)
	ConfirmPayment(ctx context.Context, confirmation booking.PaymentConfirmation) (booking.ConfirmResult, error)
	GetAvailability(ctx context.Context, courseID string) (booking.Availability, error)
	CancelBooking(ctx context.Context, bookingID string, reason string) (booking.CancelResult, error)
	TransferBooking(ctx context.Context, bookingID string, newCourseID string, email booking.Email) (booking.TransferResult, error)
	CheckActivePass(ctx context.Context, email booking.Email) (booking.PassReport, error)
	UseSession(ctx context.Context, passID string, courseID string) (booking.SessionUsage, error)
	RefundSession(ctx context.Context, passID string, courseID string) (booking.SessionUsage, error)
}

// BookingServiceServer exposes the booking core over gRPC.
type BookingServiceServer struct {
	bookingCore BookingCore
}

// NewBookingServiceServer constructs a gRPC server for the booking core.
func NewBookingServiceServer(bookingCore BookingCore) *BookingServiceServer {
	return &BookingServiceServer{bookingCore: bookingCore}
}

func (service *BookingServiceServer) Reserve(ctx context.Context, request *ReserveRequest) (*ReserveResponse, error) {
	email, err := booking.NewEmail(request.Email)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	paymentMethod, err := booking.ParsePaymentMethod(request.PaymentMethod)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	pricingOption, err := booking.ParsePricingOption(request.PricingOption)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, operationError := service.bookingCore.Reserve(ctx, booking.ReserveRequest{
		CourseID: request.CourseID,
		Customer: booking.Customer{
			Email:     email,
			FirstName: request.FirstName,
			LastName:  request.LastName,
			Phone:     request.Phone,
		},
		PaymentMethod: paymentMethod,
		PricingOption: pricingOption,
	})
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &ReserveResponse{
		Outcome:           string(result.Outcome),
		BookingID:         result.BookingID,
		WaitlistEntryID:   result.WaitlistEntryID,
		Position:          result.Position,
		AmountCents:       result.AmountCents.Int64(),
		Currency:          result.Currency,
		RequiresPayment:   result.RequiresPayment,
		ClientSecret:      result.ClientSecret,
		PaymentReference:  result.PaymentReference,
		PassID:            result.PassID,
		SessionsRemaining: result.SessionsRemaining,
	}, nil
}

func (service *BookingServiceServer) ConfirmPayment(ctx context.Context, request *ConfirmPaymentRequest) (*ConfirmPaymentResponse, error) {
	result, operationError := service.bookingCore.ConfirmPayment(ctx, booking.PaymentConfirmation{
		BookingID:             request.BookingID,
		PaymentReference:      request.PaymentReference,
		SubscriptionReference: request.SubscriptionReference,
	})
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &ConfirmPaymentResponse{
		BookingID:        result.BookingID,
		CourseID:         result.CourseID,
		Status:           result.Status.String(),
		AlreadyConfirmed: result.AlreadyConfirmed,
		PassID:           result.PassID,
	}, nil
}

func (service *BookingServiceServer) GetAvailability(ctx context.Context, request *AvailabilityRequest) (*AvailabilityResponse, error) {
	availability, operationError := service.bookingCore.GetAvailability(ctx, request.CourseID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &AvailabilityResponse{
		CourseID:         availability.CourseID,
		Title:            availability.Title,
		Location:         availability.Location,
		StartTime:        availability.StartTime,
		EndTime:          availability.EndTime,
		MaxCapacity:      availability.MaxCapacity,
		ParticipantCount: availability.ParticipantCount,
		PendingCount:     availability.PendingCount,
		SpotsRemaining:   availability.SpotsRemaining,
		IsFull:           availability.IsFull,
		Bookable:         availability.Bookable,
		PriceCents:       availability.PriceCents.Int64(),
	}, nil
}

func (service *BookingServiceServer) CancelBooking(ctx context.Context, request *CancelBookingRequest) (*CancelBookingResponse, error) {
	result, operationError := service.bookingCore.CancelBooking(ctx, request.BookingID, request.Reason)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &CancelBookingResponse{
		BookingID:       result.BookingID,
		CourseID:        result.CourseID,
		PromotedEntryID: result.PromotedEntryID,
	}, nil
}

func (service *BookingServiceServer) TransferBooking(ctx context.Context, request *TransferBookingRequest) (*TransferBookingResponse, error) {
	email, err := booking.NewEmail(request.Email)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, operationError := service.bookingCore.TransferBooking(ctx, request.BookingID, request.NewCourseID, email)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &TransferBookingResponse{
		OldBookingID:    result.OldBookingID,
		NewBookingID:    result.NewBookingID,
		OldCourseID:     result.OldCourseID,
		NewCourseID:     result.NewCourseID,
		PromotedEntryID: result.PromotedEntryID,
	}, nil
}

func (service *BookingServiceServer) CheckPass(ctx context.Context, request *CheckPassRequest) (*CheckPassResponse, error) {
	email, err := booking.NewEmail(request.Email)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	report, operationError := service.bookingCore.CheckActivePass(ctx, email)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	response := &CheckPassResponse{
		HasActivePass:   report.HasActivePass(),
		AvailablePasses: make([]PassSummary, 0, len(report.AvailablePasses)),
		IsFirstVisit:    report.IsFirstVisit,
		CanUseTrial:     report.CanUseTrial,
		FirstName:       report.FirstName,
		LastName:        report.LastName,
	}
	if report.Pass != nil {
		summary := passSummary(*report.Pass)
		response.Pass = &summary
	}
	for _, pass := range report.AvailablePasses {
		response.AvailablePasses = append(response.AvailablePasses, passSummary(pass))
	}
	return response, nil
}

func (service *BookingServiceServer) UseSession(ctx context.Context, request *SessionRequest) (*SessionResponse, error) {
	usage, operationError := service.bookingCore.UseSession(ctx, request.PassID, request.CourseID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return sessionResponse(usage), nil
}

func (service *BookingServiceServer) RefundSession(ctx context.Context, request *SessionRequest) (*SessionResponse, error) {
	usage, operationError := service.bookingCore.RefundSession(ctx, request.PassID, request.CourseID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return sessionResponse(usage), nil
}

func passSummary(pass booking.Pass) PassSummary {
	return PassSummary{
		PassID:            pass.ID,
		Type:              pass.Type.String(),
		Status:            string(pass.Status),
		SessionsRemaining: pass.SessionsRemaining,
		Unlimited:         pass.IsUnlimited(),
		ExpiryDate:        pass.ExpiryDate,
	}
}

func sessionResponse(usage booking.SessionUsage) *SessionResponse {
	return &SessionResponse{
		PassID:            usage.PassID,
		SessionsTotal:     usage.SessionsTotal,
		SessionsUsed:      usage.SessionsUsed,
		SessionsRemaining: usage.SessionsRemaining,
		Unlimited:         usage.Unlimited,
		Exhausted:         usage.Exhausted,
	}
}

var kindCodes = map[booking.ErrorKind]codes.Code{
	booking.KindNotFound:  codes.NotFound,
	booking.KindConflict:  codes.FailedPrecondition,
	booking.KindMismatch:  codes.PermissionDenied,
	booking.KindInvalid:   codes.InvalidArgument,
	booking.KindTransient: codes.Unavailable,
}

// mapToGRPCError carries the stable error code as the status message.
// Internal failures keep their text out of the response.
func mapToGRPCError(source error) error {
	code, known := kindCodes[booking.KindOf(source)]
	if !known {
		return status.Error(codes.Internal, "internal_error")
	}
	return status.Error(code, booking.ErrorCode(source))
}

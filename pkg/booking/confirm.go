package booking

import (
	"context"
	"strings"
)

// PaymentConfirmation is the provider's signal that a booking was paid.
type PaymentConfirmation struct {
	BookingID        string
	PaymentReference string

	// SubscriptionReference is set when the payment started a recurring subscription.
	SubscriptionReference string
}

// ConfirmResult reports the state of a booking after confirmation.
type ConfirmResult struct {
	BookingID        string
	CourseID         string
	Status           BookingStatus
	AlreadyConfirmed bool
	PassID           string
}

// ConfirmPayment moves a pending booking to confirmed. Replaying the same
// reference on a confirmed booking is a no-op; any other reference is a
// mismatch.
func (service *Service) ConfirmPayment(ctx context.Context, confirmation PaymentConfirmation) (ConfirmResult, error) {
	if strings.TrimSpace(confirmation.BookingID) == "" {
		return ConfirmResult{}, ErrInvalidBookingID
	}
	if strings.TrimSpace(confirmation.PaymentReference) == "" {
		return ConfirmResult{}, ErrInvalidPaymentRef
	}
	var result ConfirmResult
	var email Email
	var amount AmountCents
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		booking, err := transactionStore.GetBooking(ctx, confirmation.BookingID)
		if err != nil {
			return err
		}
		email = booking.Customer.Email
		amount = booking.AmountCents
		result = ConfirmResult{BookingID: booking.ID, CourseID: booking.CourseID, Status: booking.Status}
		if booking.ExternalPaymentReference != confirmation.PaymentReference {
			return ErrPaymentMismatch
		}
		if booking.Status == BookingStatusConfirmed {
			result.AlreadyConfirmed = true
			return nil
		}
		if booking.Status != BookingStatusPending {
			return ErrBookingNotPending
		}
		course, err := transactionStore.GetCourse(ctx, booking.CourseID)
		if err != nil {
			return err
		}
		price, err := service.pricing.Lookup(booking.PricingOption)
		if err != nil {
			return err
		}
		now := service.nowFn()
		if price.Plan != nil {
			pass, err := service.mintPass(ctx, transactionStore, CreatePassRequest{
				Customer:                      booking.Customer,
				Type:                          price.Plan.Type,
				ExternalPaymentReference:      confirmation.PaymentReference,
				ExternalSubscriptionReference: confirmation.SubscriptionReference,
				FirstCourseID:                 booking.CourseID,
			}, now)
			if err != nil {
				return err
			}
			booking.PassReference = pass.ID
			result.PassID = pass.ID
		}
		booking.Status = BookingStatusConfirmed
		booking.PaidAt = timePointer(now)
		booking.UpdatedAt = now
		if err := transactionStore.UpdateBooking(ctx, booking); err != nil {
			return err
		}
		if _, err := refreshParticipantCount(ctx, transactionStore, booking.CourseID); err != nil {
			return err
		}
		result.Status = booking.Status
		return service.recordConfirmedBooking(ctx, transactionStore, booking, course, now)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationConfirmPayment,
		Email:     email,
		CourseID:  result.CourseID,
		BookingID: confirmation.BookingID,
		PassID:    result.PassID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return ConfirmResult{}, operationError
	}
	return result, nil
}

// ConfirmPaymentByReference confirms the booking that carries reference.
func (service *Service) ConfirmPaymentByReference(ctx context.Context, reference string, subscriptionReference string) (ConfirmResult, error) {
	if strings.TrimSpace(reference) == "" {
		return ConfirmResult{}, ErrInvalidPaymentRef
	}
	booking, err := service.store.FindBookingByPaymentReference(ctx, reference)
	if err != nil {
		return ConfirmResult{}, err
	}
	return service.ConfirmPayment(ctx, PaymentConfirmation{
		BookingID:             booking.ID,
		PaymentReference:      reference,
		SubscriptionReference: subscriptionReference,
	})
}

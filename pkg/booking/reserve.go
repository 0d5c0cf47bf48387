package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReserveRequest is a customer's request for a seat.
type ReserveRequest struct {
	CourseID      string
	Customer      Customer
	PaymentMethod PaymentMethod
	PricingOption PricingOption
}

// ReserveResult reports the decision taken by Reserve.
type ReserveResult struct {
	Outcome           ReservationOutcome
	BookingID         string
	WaitlistEntryID   string
	Position          int
	AmountCents       AmountCents
	Currency          string
	RequiresPayment   bool
	ClientSecret      string
	PaymentReference  string
	PassID            string
	SessionsRemaining int
}

func (request ReserveRequest) validate() error {
	if strings.TrimSpace(request.CourseID) == "" {
		return ErrInvalidCourseID
	}
	if request.Customer.Email.IsZero() {
		return ErrInvalidEmail
	}
	if _, err := ParsePaymentMethod(request.PaymentMethod.String()); err != nil {
		return err
	}
	if _, err := ParsePricingOption(request.PricingOption.String()); err != nil {
		return err
	}
	return nil
}

// Reserve runs the capacity check and either books a seat or wait-lists the
// customer. Capacity, duplicate and trial checks run in one transaction that
// holds the course row lock. Card bookings with a price are created pending;
// the payment intent is opened after commit and a failure releases the seat.
func (service *Service) Reserve(ctx context.Context, request ReserveRequest) (ReserveResult, error) {
	if err := request.validate(); err != nil {
		return ReserveResult{}, err
	}
	price, err := service.pricing.Lookup(request.PricingOption)
	if err != nil {
		return ReserveResult{}, err
	}
	needsIntent := request.PaymentMethod == PaymentMethodCard && price.AmountCents > 0
	if needsIntent && service.payments == nil {
		return ReserveResult{}, fmt.Errorf("%w: no payment gateway configured", ErrPaymentUnavailable)
	}

	var result ReserveResult
	var course Course
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		result = ReserveResult{}
		now := service.nowFn()
		loaded, err := loadBookableCourse(ctx, transactionStore, request.CourseID, now)
		if err != nil {
			return err
		}
		course = loaded
		if _, found, err := transactionStore.FindActiveBooking(ctx, course.ID, request.Customer.Email); err != nil {
			return err
		} else if found {
			return ErrAlreadyBooked
		}
		if request.PricingOption == PricingTrial {
			previous, err := transactionStore.ListBookingsByEmail(ctx, request.Customer.Email, 1)
			if err != nil {
				return err
			}
			if len(previous) > 0 {
				return ErrTrialNotAvailable
			}
		}
		occupied, err := transactionStore.CountBookings(ctx, course.ID, activeBookingStatuses)
		if err != nil {
			return err
		}
		if occupied >= course.MaxCapacity {
			joined, err := service.joinWaitlist(ctx, transactionStore, course, request.Customer, now)
			if err != nil {
				return err
			}
			result = joined
			return nil
		}
		booked, err := service.createBooking(ctx, transactionStore, course, request, price, now)
		if err != nil {
			return err
		}
		result = booked
		return settleWaitlistEntry(ctx, transactionStore, course.ID, request.Customer.Email, now)
	})
	if operationError == nil && result.Outcome == OutcomePendingPayment {
		operationError = service.openPaymentIntent(ctx, course, request, &result)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationReserve,
		Email:     request.Customer.Email,
		CourseID:  request.CourseID,
		BookingID: result.BookingID,
		EntryID:   result.WaitlistEntryID,
		PassID:    result.PassID,
		Amount:    result.AmountCents,
		Outcome:   string(result.Outcome),
		Error:     operationError,
	})
	if operationError != nil {
		return ReserveResult{}, operationError
	}
	return result, nil
}

func (service *Service) createBooking(ctx context.Context, transactionStore Store, course Course, request ReserveRequest, price Price, now time.Time) (ReserveResult, error) {
	booking := Booking{
		ID:            service.newID(),
		CourseID:      course.ID,
		Customer:      request.Customer,
		PaymentMethod: request.PaymentMethod,
		PricingOption: request.PricingOption,
		AmountCents:   price.AmountCents,
		Currency:      service.currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	result := ReserveResult{BookingID: booking.ID, Currency: service.currency}

	switch request.PaymentMethod {
	case PaymentMethodCash:
		booking.Status = BookingStatusConfirmedCashPending
		result.Outcome = OutcomeConfirmedPendingCash
	case PaymentMethodPass:
		usable, err := refreshPasses(ctx, transactionStore, request.Customer.Email, now)
		if err != nil {
			return ReserveResult{}, err
		}
		if len(usable) == 0 {
			return ReserveResult{}, ErrNoActivePass
		}
		pass, err := transactionStore.GetPass(ctx, usable[0].ID)
		if err != nil {
			return ReserveResult{}, err
		}
		if err := pass.consume(course.ID, now); err != nil {
			return ReserveResult{}, err
		}
		if err := transactionStore.UpdatePass(ctx, pass); err != nil {
			return ReserveResult{}, err
		}
		booking.AmountCents = 0
		booking.PassReference = pass.ID
		booking.Status = BookingStatusConfirmed
		booking.PaidAt = timePointer(now)
		result.Outcome = OutcomeConfirmed
		result.PassID = pass.ID
		result.SessionsRemaining = pass.SessionsRemaining
	case PaymentMethodCard:
		if booking.AmountCents > 0 {
			booking.Status = BookingStatusPending
			result.Outcome = OutcomePendingPayment
			result.RequiresPayment = true
		} else {
			booking.Status = BookingStatusConfirmed
			booking.PaidAt = timePointer(now)
			result.Outcome = OutcomeConfirmed
		}
	default:
		return ReserveResult{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, request.PaymentMethod)
	}
	result.AmountCents = booking.AmountCents

	if err := transactionStore.CreateBooking(ctx, booking); err != nil {
		return ReserveResult{}, err
	}
	if !booking.Status.IsParticipant() {
		return result, nil
	}
	if _, err := refreshParticipantCount(ctx, transactionStore, course.ID); err != nil {
		return ReserveResult{}, err
	}
	if err := service.recordConfirmedBooking(ctx, transactionStore, booking, course, now); err != nil {
		return ReserveResult{}, err
	}
	return result, nil
}

// openPaymentIntent asks the provider for an intent and stores its reference
// on the pending booking. When the provider fails the booking is cancelled so
// the seat is not held by a payment that can never complete.
func (service *Service) openPaymentIntent(ctx context.Context, course Course, request ReserveRequest, result *ReserveResult) error {
	intent, err := service.payments.CreatePaymentIntent(ctx, PaymentIntentRequest{
		BookingID:     result.BookingID,
		CourseID:      course.ID,
		CourseTitle:   course.Title,
		Email:         request.Customer.Email,
		AmountCents:   result.AmountCents,
		Currency:      result.Currency,
		PricingOption: request.PricingOption,
	})
	if err == nil && strings.TrimSpace(intent.Reference) == "" {
		err = errors.New("payment provider returned an empty reference")
	}
	if err != nil {
		if releaseErr := service.releasePendingBooking(ctx, result.BookingID); releaseErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrPaymentUnavailable, err), releaseErr)
		}
		return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}
	updateError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		booking, err := transactionStore.GetBooking(ctx, result.BookingID)
		if err != nil {
			return err
		}
		if booking.Status != BookingStatusPending {
			return ErrBookingNotPending
		}
		booking.ExternalPaymentReference = intent.Reference
		booking.UpdatedAt = service.nowFn()
		return transactionStore.UpdateBooking(ctx, booking)
	})
	if updateError != nil {
		return updateError
	}
	result.ClientSecret = intent.ClientSecret
	result.PaymentReference = intent.Reference
	return nil
}

func (service *Service) releasePendingBooking(ctx context.Context, bookingID string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		booking, err := transactionStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != BookingStatusPending {
			return nil
		}
		now := service.nowFn()
		booking.Status = BookingStatusCancelled
		booking.CancellationReason = CancellationReasonPaymentInitiationFailed
		booking.CancelledAt = timePointer(now)
		booking.UpdatedAt = now
		if err := transactionStore.UpdateBooking(ctx, booking); err != nil {
			return err
		}
		_, _, err = service.promoteNext(ctx, transactionStore, booking.CourseID, now)
		return err
	})
	service.logOperation(ctx, OperationLog{Operation: operationReleasePending, BookingID: bookingID, Error: operationError})
	return operationError
}

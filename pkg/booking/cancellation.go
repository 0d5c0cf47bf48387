package booking

import (
	"context"
	"strings"
)

// CancelResult reports a cancellation and the waitlist entry it promoted.
type CancelResult struct {
	BookingID       string
	CourseID        string
	PromotedEntryID string
}

// CancelBooking releases a booking. No money or pass session is returned
// here; pass refunds go through RefundSession.
func (service *Service) CancelBooking(ctx context.Context, bookingID string, reason string) (CancelResult, error) {
	if strings.TrimSpace(bookingID) == "" {
		return CancelResult{}, ErrInvalidBookingID
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = CancellationReasonCustomer
	}
	var result CancelResult
	var email Email
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		booking, err := transactionStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		email = booking.Customer.Email
		result = CancelResult{BookingID: booking.ID, CourseID: booking.CourseID}
		switch booking.Status {
		case BookingStatusCancelled:
			return ErrAlreadyCancelled
		case BookingStatusCompleted:
			return ErrBookingCompleted
		}
		course, err := transactionStore.GetCourse(ctx, booking.CourseID)
		if err != nil {
			return err
		}
		wasParticipant := booking.Status.IsParticipant()
		now := service.nowFn()
		booking.Status = BookingStatusCancelled
		booking.CancellationReason = reason
		booking.CancelledAt = timePointer(now)
		booking.UpdatedAt = now
		if err := transactionStore.UpdateBooking(ctx, booking); err != nil {
			return err
		}
		if err := transactionStore.EnqueueNotification(ctx, Notification{
			To:       booking.Customer.Email,
			Template: TemplateBookingCancelled,
			Data:     bookingTemplateData(booking, course),
		}); err != nil {
			return err
		}
		if wasParticipant {
			if _, err := refreshParticipantCount(ctx, transactionStore, booking.CourseID); err != nil {
				return err
			}
		}
		// A pending booking held a seat too, so the queue moves either way.
		promoted, found, err := service.promoteNext(ctx, transactionStore, booking.CourseID, now)
		if err != nil {
			return err
		}
		if found {
			result.PromotedEntryID = promoted.ID
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCancelBooking,
		Email:     email,
		CourseID:  result.CourseID,
		BookingID: bookingID,
		EntryID:   result.PromotedEntryID,
		Error:     operationError,
	})
	if operationError != nil {
		return CancelResult{}, operationError
	}
	return result, nil
}

// TransferResult links the cancelled source booking with its replacement.
type TransferResult struct {
	OldBookingID    string
	NewBookingID    string
	OldCourseID     string
	NewCourseID     string
	PromotedEntryID string
}

// TransferBooking moves a held seat to another course in one transaction.
// The new booking keeps the status, price and pass of the old one.
func (service *Service) TransferBooking(ctx context.Context, bookingID string, newCourseID string, email Email) (TransferResult, error) {
	if strings.TrimSpace(bookingID) == "" {
		return TransferResult{}, ErrInvalidBookingID
	}
	if strings.TrimSpace(newCourseID) == "" {
		return TransferResult{}, ErrInvalidCourseID
	}
	if email.IsZero() {
		return TransferResult{}, ErrInvalidEmail
	}
	var result TransferResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		old, err := transactionStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if old.Customer.Email != email {
			return ErrEmailMismatch
		}
		if old.Status == BookingStatusCancelled {
			return ErrAlreadyCancelled
		}
		if !old.Status.IsParticipant() {
			return ErrBookingNotTransferable
		}
		if old.CourseID == newCourseID {
			return ErrAlreadyBooked
		}
		now := service.nowFn()
		oldCourse, err := transactionStore.GetCourse(ctx, old.CourseID)
		if err != nil {
			return err
		}
		newCourse, err := loadBookableCourse(ctx, transactionStore, newCourseID, now)
		if err != nil {
			return err
		}
		if _, found, err := transactionStore.FindActiveBooking(ctx, newCourse.ID, email); err != nil {
			return err
		} else if found {
			return ErrAlreadyBooked
		}
		occupied, err := transactionStore.CountBookings(ctx, newCourse.ID, activeBookingStatuses)
		if err != nil {
			return err
		}
		if occupied >= newCourse.MaxCapacity {
			return ErrCourseFull
		}

		replacement := Booking{
			ID:              service.newID(),
			CourseID:        newCourse.ID,
			Customer:        old.Customer,
			PaymentMethod:   old.PaymentMethod,
			PricingOption:   old.PricingOption,
			AmountCents:     old.AmountCents,
			Currency:        old.Currency,
			Status:          old.Status,
			PassReference:   old.PassReference,
			TransferredFrom: old.CourseID,
			CreatedAt:       now,
			UpdatedAt:       now,
			PaidAt:          old.PaidAt,
		}
		old.Status = BookingStatusCancelled
		old.CancellationReason = CancellationReasonTransferred
		old.TransferredTo = newCourse.ID
		old.CancelledAt = timePointer(now)
		old.UpdatedAt = now
		if err := transactionStore.UpdateBooking(ctx, old); err != nil {
			return err
		}
		if err := transactionStore.CreateBooking(ctx, replacement); err != nil {
			return err
		}
		if _, err := refreshParticipantCount(ctx, transactionStore, oldCourse.ID); err != nil {
			return err
		}
		if _, err := refreshParticipantCount(ctx, transactionStore, newCourse.ID); err != nil {
			return err
		}
		if err := settleWaitlistEntry(ctx, transactionStore, newCourse.ID, email, now); err != nil {
			return err
		}
		data := bookingTemplateData(replacement, newCourse)
		data["previousCourseName"] = oldCourse.Title
		data["previousCourseId"] = oldCourse.ID
		if err := transactionStore.EnqueueNotification(ctx, Notification{To: email, Template: TemplateBookingTransferred, Data: data}); err != nil {
			return err
		}
		if err := transactionStore.EnqueueSheetRow(ctx, bookingSheetRow(replacement, newCourse, now)); err != nil {
			return err
		}
		result = TransferResult{OldBookingID: old.ID, NewBookingID: replacement.ID, OldCourseID: oldCourse.ID, NewCourseID: newCourse.ID}
		promoted, found, err := service.promoteNext(ctx, transactionStore, oldCourse.ID, now)
		if err != nil {
			return err
		}
		if found {
			result.PromotedEntryID = promoted.ID
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationTransferBooking,
		Email:     email,
		CourseID:  newCourseID,
		BookingID: bookingID,
		EntryID:   result.PromotedEntryID,
		Error:     operationError,
	})
	if operationError != nil {
		return TransferResult{}, operationError
	}
	return result, nil
}

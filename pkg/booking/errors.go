package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service.
var (
	ErrCourseNotFound         = errors.New("course not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrPassNotFound           = errors.New("pass not found")
	ErrWaitlistEntryNotFound  = errors.New("waitlist entry not found")
	ErrNotInWaitlist          = errors.New("not in waitlist")
	ErrSessionNotFound        = errors.New("session not found")
	ErrAlreadyBooked          = errors.New("already booked")
	ErrAlreadyCancelled       = errors.New("already cancelled")
	ErrAlreadyProcessed       = errors.New("already processed")
	ErrBookingCompleted       = errors.New("booking completed")
	ErrCourseFull             = errors.New("course full")
	ErrCourseClosed           = errors.New("course closed")
	ErrPassNotActive          = errors.New("pass not active")
	ErrNoSessionsRemaining    = errors.New("no sessions remaining")
	ErrNoActivePass           = errors.New("no active pass")
	ErrTrialNotAvailable      = errors.New("trial not available")
	ErrBookingNotTransferable = errors.New("booking not transferable")
	ErrBookingNotPending      = errors.New("booking not pending")
	ErrNotRecurring           = errors.New("pass not recurring")
	ErrPaymentMismatch        = errors.New("payment mismatch")
	ErrEmailMismatch          = errors.New("email mismatch")
	ErrPaymentUnavailable     = errors.New("payment unavailable")
	ErrStoreConflict          = errors.New("store conflict")
	ErrStoreUnavailable       = errors.New("store unavailable")

	ErrInvalidEmail          = errors.New("invalid email")
	ErrInvalidCourseID       = errors.New("invalid course id")
	ErrInvalidBookingID      = errors.New("invalid booking id")
	ErrInvalidPassID         = errors.New("invalid pass id")
	ErrInvalidEntryID        = errors.New("invalid waitlist entry id")
	ErrInvalidAmountCents    = errors.New("invalid amount cents")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidPricingOption  = errors.New("invalid pricing option")
	ErrInvalidBookingStatus  = errors.New("invalid booking status")
	ErrInvalidCourseStatus   = errors.New("invalid course status")
	ErrInvalidWaitlistStatus = errors.New("invalid waitlist status")
	ErrInvalidPassType       = errors.New("invalid pass type")
	ErrInvalidPassStatus     = errors.New("invalid pass status")
	ErrInvalidPaymentRef     = errors.New("invalid payment reference")
	ErrInvalidCapacity       = errors.New("invalid capacity")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// ErrorKind groups domain errors by how a boundary should report them.
type ErrorKind string

const (
	KindNotFound  ErrorKind = "not_found"
	KindConflict  ErrorKind = "conflict"
	KindMismatch  ErrorKind = "mismatch"
	KindInvalid   ErrorKind = "invalid"
	KindTransient ErrorKind = "transient"
	KindInternal  ErrorKind = "internal"
)

var errorKinds = []struct {
	kind   ErrorKind
	errors []error
}{
	{KindNotFound, []error{ErrCourseNotFound, ErrBookingNotFound, ErrPassNotFound, ErrWaitlistEntryNotFound, ErrNotInWaitlist, ErrSessionNotFound, ErrNoActivePass}},
	{KindConflict, []error{ErrAlreadyBooked, ErrAlreadyCancelled, ErrAlreadyProcessed, ErrBookingCompleted, ErrCourseFull, ErrCourseClosed, ErrPassNotActive, ErrNoSessionsRemaining, ErrTrialNotAvailable, ErrBookingNotTransferable, ErrBookingNotPending, ErrNotRecurring, ErrStoreConflict}},
	{KindMismatch, []error{ErrPaymentMismatch, ErrEmailMismatch}},
	{KindTransient, []error{ErrPaymentUnavailable, ErrStoreUnavailable}},
	{KindInvalid, []error{ErrInvalidEmail, ErrInvalidCourseID, ErrInvalidBookingID, ErrInvalidPassID, ErrInvalidEntryID, ErrInvalidAmountCents, ErrInvalidPaymentMethod, ErrInvalidPricingOption, ErrInvalidBookingStatus, ErrInvalidCourseStatus, ErrInvalidWaitlistStatus, ErrInvalidPassType, ErrInvalidPassStatus, ErrInvalidPaymentRef, ErrInvalidCapacity}},
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, group := range errorKinds {
		for _, target := range group.errors {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindInternal
}

// ErrorCode returns a stable snake_case code for err, suitable for API envelopes.
func ErrorCode(err error) string {
	if code, ok := sentinelCode(err); ok {
		return code
	}
	var operationError OperationError
	if errors.As(err, &operationError) && operationError.code != "" {
		return operationError.code
	}
	return "internal_error"
}

var sentinelCodes = map[error]string{
	ErrCourseNotFound:         "course_not_found",
	ErrBookingNotFound:        "booking_not_found",
	ErrPassNotFound:           "pass_not_found",
	ErrWaitlistEntryNotFound:  "waitlist_entry_not_found",
	ErrNotInWaitlist:          "not_in_waitlist",
	ErrSessionNotFound:        "session_not_found",
	ErrAlreadyBooked:          "already_booked",
	ErrAlreadyCancelled:       "already_cancelled",
	ErrAlreadyProcessed:       "already_processed",
	ErrBookingCompleted:       "booking_completed",
	ErrCourseFull:             "course_full",
	ErrCourseClosed:           "course_closed",
	ErrPassNotActive:          "pass_not_active",
	ErrNoSessionsRemaining:    "no_sessions_remaining",
	ErrNoActivePass:           "no_active_pass",
	ErrTrialNotAvailable:      "trial_not_available",
	ErrBookingNotTransferable: "booking_not_transferable",
	ErrBookingNotPending:      "booking_not_pending",
	ErrNotRecurring:           "pass_not_recurring",
	ErrPaymentMismatch:        "payment_mismatch",
	ErrEmailMismatch:          "email_mismatch",
	ErrPaymentUnavailable:     "payment_unavailable",
	ErrStoreConflict:          "store_conflict",
	ErrStoreUnavailable:       "store_unavailable",
}

func sentinelCode(err error) (string, bool) {
	for sentinel, code := range sentinelCodes {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}
	if KindOf(err) == KindInvalid {
		return "invalid_request", true
	}
	return "", false
}

package booking

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassifiesWrappedErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{name: "not found", err: fmt.Errorf("load: %w", ErrCourseNotFound), expected: KindNotFound},
		{name: "conflict", err: WrapError("store", "booking", "duplicate", ErrStoreConflict), expected: KindConflict},
		{name: "full", err: ErrCourseFull, expected: KindConflict},
		{name: "mismatch", err: ErrPaymentMismatch, expected: KindMismatch},
		{name: "transient", err: fmt.Errorf("%w: timeout", ErrPaymentUnavailable), expected: KindTransient},
		{name: "invalid", err: fmt.Errorf("%w: bad", ErrInvalidEmail), expected: KindInvalid},
		{name: "unknown", err: errors.New("boom"), expected: KindInternal},
		{name: "nil", err: nil, expected: ""},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if kind := KindOf(testCase.err); kind != testCase.expected {
				test.Fatalf("expected %q, got %q", testCase.expected, kind)
			}
		})
	}
}

func TestErrorCode(test *testing.T) {
	test.Parallel()
	if code := ErrorCode(fmt.Errorf("wrap: %w", ErrAlreadyBooked)); code != "already_booked" {
		test.Fatalf("unexpected code %q", code)
	}
	if code := ErrorCode(ErrInvalidPricingOption); code != "invalid_request" {
		test.Fatalf("unexpected code %q", code)
	}
	if code := ErrorCode(WrapError("store", "course", "query_failed", errors.New("io"))); code != "query_failed" {
		test.Fatalf("unexpected code %q", code)
	}
	if code := ErrorCode(errors.New("boom")); code != "internal_error" {
		test.Fatalf("unexpected code %q", code)
	}
}

func TestOperationErrorFormatsSegments(test *testing.T) {
	test.Parallel()
	err := WrapError("service", "booking", "lookup_failed", ErrBookingNotFound)
	var operationError OperationError
	if !errors.As(err, &operationError) {
		test.Fatalf("expected OperationError")
	}
	if operationError.Operation() != "service" || operationError.Subject() != "booking" || operationError.Code() != "lookup_failed" {
		test.Fatalf("unexpected segments %+v", operationError)
	}
	if err.Error() != "service.booking.lookup_failed: booking not found" {
		test.Fatalf("unexpected message %q", err.Error())
	}
	if WrapError("a", "b", "c", nil) != nil {
		test.Fatalf("wrapping nil must return nil")
	}
}

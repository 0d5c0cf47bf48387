package booking

import (
	"context"
	"time"
)

// Store is the persistence contract the booking service runs against.
// Reads of Course, Booking and Pass rows inside WithTx lock the row until the
// transaction ends, so every read-check-write sequence below is serialized
// per course or per pass.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetCourse(ctx context.Context, courseID string) (Course, error)
	ListCourses(ctx context.Context, from time.Time, limit int) ([]Course, error)
	UpsertCourse(ctx context.Context, course Course) error
	UpdateCourseParticipantCount(ctx context.Context, courseID string, participantCount int) error

	CreateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, bookingID string) (Booking, error)
	UpdateBooking(ctx context.Context, booking Booking) error
	FindActiveBooking(ctx context.Context, courseID string, email Email) (Booking, bool, error)
	FindBookingByPaymentReference(ctx context.Context, reference string) (Booking, error)
	CountBookings(ctx context.Context, courseID string, statuses []BookingStatus) (int, error)
	ListBookingsByEmail(ctx context.Context, email Email, limit int) ([]Booking, error)

	CreateWaitlistEntry(ctx context.Context, entry WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, entryID string) (WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, entry WaitlistEntry) error
	// ListWaitlistEntries returns the course entries in statuses ordered by CreatedAt, then ID.
	ListWaitlistEntries(ctx context.Context, courseID string, statuses []WaitlistStatus) ([]WaitlistEntry, error)

	CreatePass(ctx context.Context, pass Pass) error
	GetPass(ctx context.Context, passID string) (Pass, error)
	UpdatePass(ctx context.Context, pass Pass) error
	// ListPassesByEmail returns every pass of the customer, newest first.
	ListPassesByEmail(ctx context.Context, email Email) ([]Pass, error)
	FindPassBySubscriptionReference(ctx context.Context, reference string) (Pass, error)

	EnqueueNotification(ctx context.Context, notification Notification) error
	EnqueueSheetRow(ctx context.Context, row SheetRow) error
}

// PaymentGateway opens an external payment for a pending booking.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, request PaymentIntentRequest) (PaymentIntent, error)
}

// PaymentIntentRequest describes the amount to collect for a booking.
type PaymentIntentRequest struct {
	BookingID     string
	CourseID      string
	CourseTitle   string
	Email         Email
	AmountCents   AmountCents
	Currency      string
	PricingOption PricingOption
}

// PaymentIntent is the provider handle returned to the client.
type PaymentIntent struct {
	Reference    string
	ClientSecret string
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service contains the booking domain logic over a Store.
type Service struct {
	store      Store
	nowFn      func() time.Time
	newID      func() string
	logger     OperationLogger
	payments   PaymentGateway
	pricing    PricingTable
	currency   string
	bookingURL string
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:    store,
		nowFn:    now,
		newID:    uuid.NewString,
		pricing:  DefaultPricing(),
		currency: defaultCurrency,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Pricing exposes the active price list.
func (service *Service) Pricing() PricingTable {
	return service.pricing
}

// GetBooking loads a booking by id.
func (service *Service) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	if strings.TrimSpace(bookingID) == "" {
		return Booking{}, ErrInvalidBookingID
	}
	return service.store.GetBooking(ctx, bookingID)
}

// SyncCourse writes a course record coming from the calendar. The participant
// counter is owned by this service and is never taken from the input.
func (service *Service) SyncCourse(ctx context.Context, course Course) error {
	if strings.TrimSpace(course.ID) == "" {
		return ErrInvalidCourseID
	}
	if course.MaxCapacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, course.MaxCapacity)
	}
	if course.Status == "" {
		course.Status = CourseStatusActive
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, err := transactionStore.GetCourse(ctx, course.ID)
		switch {
		case err == nil:
			course.ParticipantCount = existing.ParticipantCount
		case errors.Is(err, ErrCourseNotFound):
			course.ParticipantCount = 0
		default:
			return err
		}
		course.UpdatedAt = service.nowFn()
		return transactionStore.UpsertCourse(ctx, course)
	})
}

// CancelCourse marks a course as no longer bookable.
func (service *Service) CancelCourse(ctx context.Context, courseID string) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		course, err := transactionStore.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if course.Status == CourseStatusCancelled {
			return nil
		}
		course.Status = CourseStatusCancelled
		course.UpdatedAt = service.nowFn()
		return transactionStore.UpsertCourse(ctx, course)
	})
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// loadBookableCourse returns the locked course or the reason it cannot take bookings.
func loadBookableCourse(ctx context.Context, transactionStore Store, courseID string, now time.Time) (Course, error) {
	course, err := transactionStore.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if course.Status == CourseStatusCancelled {
		return Course{}, ErrCourseNotFound
	}
	if !course.StartTime.IsZero() && !course.StartTime.After(now) {
		return Course{}, ErrCourseClosed
	}
	return course, nil
}

// refreshParticipantCount recomputes the cached counter from bookings.
func refreshParticipantCount(ctx context.Context, transactionStore Store, courseID string) (int, error) {
	count, err := transactionStore.CountBookings(ctx, courseID, participantBookingStatuses)
	if err != nil {
		return 0, err
	}
	if err := transactionStore.UpdateCourseParticipantCount(ctx, courseID, count); err != nil {
		return 0, err
	}
	return count, nil
}

func timePointer(value time.Time) *time.Time {
	return &value
}

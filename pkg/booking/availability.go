package booking

import (
	"context"
	"strings"
	"time"
)

// Availability is a read-only capacity report for one course.
type Availability struct {
	CourseID         string
	Title            string
	Location         string
	StartTime        time.Time
	EndTime          time.Time
	MaxCapacity      int
	ParticipantCount int
	PendingCount     int
	SpotsRemaining   int
	IsFull           bool
	IsPast           bool

	// Bookable also accounts for seats held by pending online payments.
	Bookable   bool
	PriceCents AmountCents
	Status     CourseStatus
}

// GetAvailability recounts participants from bookings rather than trusting the
// cached counter.
func (service *Service) GetAvailability(ctx context.Context, courseID string) (Availability, error) {
	if strings.TrimSpace(courseID) == "" {
		return Availability{}, ErrInvalidCourseID
	}
	course, err := service.store.GetCourse(ctx, courseID)
	if err != nil {
		return Availability{}, err
	}
	return service.availabilityFor(ctx, service.store, course)
}

// ListAvailability reports every course starting at or after from.
func (service *Service) ListAvailability(ctx context.Context, from time.Time, limit int) ([]Availability, error) {
	if limit <= 0 {
		limit = defaultCourseListLimit
	}
	courses, err := service.store.ListCourses(ctx, from, limit)
	if err != nil {
		return nil, err
	}
	reports := make([]Availability, 0, len(courses))
	for _, course := range courses {
		report, err := service.availabilityFor(ctx, service.store, course)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (service *Service) availabilityFor(ctx context.Context, store Store, course Course) (Availability, error) {
	participants, err := store.CountBookings(ctx, course.ID, participantBookingStatuses)
	if err != nil {
		return Availability{}, err
	}
	pending, err := store.CountBookings(ctx, course.ID, []BookingStatus{BookingStatusPending})
	if err != nil {
		return Availability{}, err
	}
	return buildAvailability(course, participants, pending, service.nowFn()), nil
}

func buildAvailability(course Course, participants int, pending int, now time.Time) Availability {
	spotsRemaining := course.MaxCapacity - participants
	if spotsRemaining < 0 {
		spotsRemaining = 0
	}
	isPast := !course.StartTime.IsZero() && !course.StartTime.After(now)
	isFull := spotsRemaining == 0
	return Availability{
		CourseID:         course.ID,
		Title:            course.Title,
		Location:         course.Location,
		StartTime:        course.StartTime,
		EndTime:          course.EndTime,
		MaxCapacity:      course.MaxCapacity,
		ParticipantCount: participants,
		PendingCount:     pending,
		SpotsRemaining:   spotsRemaining,
		IsFull:           isFull,
		IsPast:           isPast,
		Bookable:         !isPast && course.Status != CourseStatusCancelled && participants+pending < course.MaxCapacity,
		PriceCents:       course.PriceCents,
		Status:           course.Status,
	}
}

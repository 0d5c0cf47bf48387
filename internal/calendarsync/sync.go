// Package calendarsync mirrors calendar events into bookable courses.
package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"go.uber.org/zap"
)

const defaultWindow = 90 * 24 * time.Hour

var ErrInvalidConfig = errors.New("calendarsync: invalid config")

// Event is a calendar entry reduced to what course sync needs.
type Event struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Cancelled   bool
}

// EventSource lists events starting in [from, to).
type EventSource interface {
	ListEvents(ctx context.Context, from time.Time, to time.Time) ([]Event, error)
}

// CourseWriter is implemented by *booking.Service.
type CourseWriter interface {
	SyncCourse(ctx context.Context, course booking.Course) error
	CancelCourse(ctx context.Context, courseID string) error
}

// Result summarizes one sync run.
type Result struct {
	Synced    int
	Cancelled int
	Skipped   int
	Failed    int
}

// Syncer copies upcoming events into the course catalogue.
type Syncer struct {
	source          EventSource
	courses         CourseWriter
	logger          *zap.Logger
	nowFn           func() time.Time
	window          time.Duration
	defaultLocation string
}

// Option customizes a Syncer.
type Option func(*Syncer)

// WithWindow sets how far ahead events are read.
func WithWindow(window time.Duration) Option {
	return func(syncer *Syncer) {
		if window > 0 {
			syncer.window = window
		}
	}
}

// WithDefaultLocation names the venue used for events without a location.
func WithDefaultLocation(location string) Option {
	return func(syncer *Syncer) {
		syncer.defaultLocation = location
	}
}

func WithClock(now func() time.Time) Option {
	return func(syncer *Syncer) {
		if now != nil {
			syncer.nowFn = now
		}
	}
}

func NewSyncer(source EventSource, courses CourseWriter, logger *zap.Logger, options ...Option) (*Syncer, error) {
	if source == nil || courses == nil {
		return nil, fmt.Errorf("%w: source and course writer are required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	syncer := &Syncer{
		source:  source,
		courses: courses,
		logger:  logger,
		nowFn:   time.Now,
		window:  defaultWindow,
	}
	for _, option := range options {
		option(syncer)
	}
	return syncer, nil
}

// Sync reads the upcoming window and upserts one course per event. A failing
// event is counted and logged; it does not stop the run.
func (syncer *Syncer) Sync(ctx context.Context) (Result, error) {
	now := syncer.nowFn().UTC()
	events, err := syncer.source.ListEvents(ctx, now, now.Add(syncer.window))
	if err != nil {
		return Result{}, fmt.Errorf("list calendar events: %w", err)
	}
	var result Result
	for _, event := range events {
		if event.Cancelled {
			err := syncer.courses.CancelCourse(ctx, event.ID)
			switch {
			case err == nil:
				result.Cancelled++
			case errors.Is(err, booking.ErrCourseNotFound):
				result.Skipped++
			default:
				result.Failed++
				syncer.logger.Error("cancel course failed", zap.String("course_id", event.ID), zap.Error(err))
			}
			continue
		}
		course, ok := syncer.courseFromEvent(event)
		if !ok {
			result.Skipped++
			continue
		}
		if err := syncer.courses.SyncCourse(ctx, course); err != nil {
			result.Failed++
			syncer.logger.Error("sync course failed", zap.String("course_id", event.ID), zap.Error(err))
			continue
		}
		result.Synced++
	}
	syncer.logger.Info("calendar sync finished",
		zap.Int("synced", result.Synced),
		zap.Int("cancelled", result.Cancelled),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (syncer *Syncer) courseFromEvent(event Event) (booking.Course, bool) {
	if event.ID == "" || event.Summary == "" || event.Start.IsZero() {
		return booking.Course{}, false
	}
	annotations := ParseAnnotations(event.Description)
	location := event.Location
	if location == "" {
		location = syncer.defaultLocation
	}
	end := event.End
	if end.IsZero() {
		end = event.Start
	}
	return booking.Course{
		ID:          event.ID,
		Title:       event.Summary,
		Description: annotations.Description,
		Location:    location,
		StartTime:   event.Start.UTC(),
		EndTime:     end.UTC(),
		MaxCapacity: annotations.MaxCapacity,
		PriceCents:  annotations.PriceCents,
		Status:      booking.CourseStatusActive,
	}, true
}

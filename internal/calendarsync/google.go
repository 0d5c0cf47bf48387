package calendarsync

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	eventStatusCancelled = "cancelled"
	eventOrderStartTime  = "startTime"
	allDayLayout         = "2006-01-02"
)

// GoogleSource reads events from one Google Calendar.
type GoogleSource struct {
	service    *calendar.Service
	calendarID string
}

// NewGoogleSource authenticates with a service-account JSON key.
func NewGoogleSource(ctx context.Context, credentialsJSON []byte, calendarID string) (*GoogleSource, error) {
	return newGoogleSource(ctx, calendarID,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(calendar.CalendarReadonlyScope),
	)
}

func newGoogleSource(ctx context.Context, calendarID string, options ...option.ClientOption) (*GoogleSource, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("%w: calendar id is required", ErrInvalidConfig)
	}
	service, err := calendar.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}
	return &GoogleSource{service: service, calendarID: calendarID}, nil
}

// ListEvents expands recurring events and includes cancelled instances so the
// syncer can close the matching courses.
func (source *GoogleSource) ListEvents(ctx context.Context, from time.Time, to time.Time) ([]Event, error) {
	var events []Event
	call := source.service.Events.List(source.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(true).
		OrderBy(eventOrderStartTime)
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			event, err := convertEvent(item)
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func convertEvent(item *calendar.Event) (Event, error) {
	event := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Cancelled:   item.Status == eventStatusCancelled,
	}
	if event.Cancelled {
		return event, nil
	}
	start, err := eventTime(item.Start)
	if err != nil {
		return Event{}, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, err := eventTime(item.End)
	if err != nil {
		return Event{}, fmt.Errorf("event %s end: %w", item.Id, err)
	}
	event.Start = start
	event.End = end
	return event, nil
}

func eventTime(value *calendar.EventDateTime) (time.Time, error) {
	switch {
	case value == nil:
		return time.Time{}, nil
	case value.DateTime != "":
		return time.Parse(time.RFC3339, value.DateTime)
	case value.Date != "":
		return time.Parse(allDayLayout, value.Date)
	default:
		return time.Time{}, nil
	}
}

package booking

import (
	"context"
	"strings"
	"time"
)

// joinWaitlist adds the customer to the course queue. A customer already
// waiting keeps their original place.
func (service *Service) joinWaitlist(ctx context.Context, transactionStore Store, course Course, customer Customer, now time.Time) (ReserveResult, error) {
	waiting, err := transactionStore.ListWaitlistEntries(ctx, course.ID, waitingStatuses)
	if err != nil {
		return ReserveResult{}, err
	}
	for index, entry := range waiting {
		if entry.Customer.Email == customer.Email {
			return ReserveResult{Outcome: OutcomeWaitlisted, WaitlistEntryID: entry.ID, Position: index + 1}, nil
		}
	}
	entry := WaitlistEntry{
		ID:        service.newID(),
		CourseID:  course.ID,
		Customer:  customer,
		Status:    WaitlistStatusWaiting,
		CreatedAt: now,
	}
	if err := transactionStore.CreateWaitlistEntry(ctx, entry); err != nil {
		return ReserveResult{}, err
	}
	position := len(waiting) + 1
	if err := transactionStore.EnqueueNotification(ctx, waitlistJoinedNotification(entry, course, position)); err != nil {
		return ReserveResult{}, err
	}
	return ReserveResult{Outcome: OutcomeWaitlisted, WaitlistEntryID: entry.ID, Position: position}, nil
}

// WaitlistPosition is the computed rank of a waiting entry.
type WaitlistPosition struct {
	Entry    WaitlistEntry
	Position int
	Waiting  int
}

// GetPosition ranks the customer among waiting entries of a course.
func (service *Service) GetPosition(ctx context.Context, email Email, courseID string) (WaitlistPosition, error) {
	if email.IsZero() {
		return WaitlistPosition{}, ErrInvalidEmail
	}
	if strings.TrimSpace(courseID) == "" {
		return WaitlistPosition{}, ErrInvalidCourseID
	}
	waiting, err := service.store.ListWaitlistEntries(ctx, courseID, waitingStatuses)
	if err != nil {
		return WaitlistPosition{}, err
	}
	for index, entry := range waiting {
		if entry.Customer.Email == email {
			return WaitlistPosition{Entry: entry, Position: index + 1, Waiting: len(waiting)}, nil
		}
	}
	return WaitlistPosition{}, ErrNotInWaitlist
}

// RemoveFromWaitlist withdraws a waiting entry owned by email.
func (service *Service) RemoveFromWaitlist(ctx context.Context, entryID string, email Email) error {
	if strings.TrimSpace(entryID) == "" {
		return ErrInvalidEntryID
	}
	if email.IsZero() {
		return ErrInvalidEmail
	}
	var courseID string
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		entry, err := transactionStore.GetWaitlistEntry(ctx, entryID)
		if err != nil {
			return err
		}
		courseID = entry.CourseID
		if entry.Customer.Email != email {
			return ErrEmailMismatch
		}
		if entry.Status != WaitlistStatusWaiting {
			return ErrAlreadyProcessed
		}
		now := service.nowFn()
		entry.Status = WaitlistStatusRemoved
		entry.RemovedAt = timePointer(now)
		return transactionStore.UpdateWaitlistEntry(ctx, entry)
	})
	service.logOperation(ctx, OperationLog{Operation: operationRemoveFromWaitlist, Email: email, CourseID: courseID, EntryID: entryID, Error: operationError})
	return operationError
}

// PromoteNext notifies the first waiting customer of a course that a seat
// opened. Promotion does not book the seat; the customer has to reserve.
func (service *Service) PromoteNext(ctx context.Context, courseID string) (WaitlistEntry, bool, error) {
	if strings.TrimSpace(courseID) == "" {
		return WaitlistEntry{}, false, ErrInvalidCourseID
	}
	var promoted WaitlistEntry
	var found bool
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		entry, ok, err := service.promoteNext(ctx, transactionStore, courseID, service.nowFn())
		promoted, found = entry, ok
		return err
	})
	service.logOperation(ctx, OperationLog{Operation: operationPromoteNext, Email: promoted.Customer.Email, CourseID: courseID, EntryID: promoted.ID, Error: operationError})
	if operationError != nil {
		return WaitlistEntry{}, false, operationError
	}
	return promoted, found, nil
}

func (service *Service) promoteNext(ctx context.Context, transactionStore Store, courseID string, now time.Time) (WaitlistEntry, bool, error) {
	course, err := transactionStore.GetCourse(ctx, courseID)
	if err != nil {
		return WaitlistEntry{}, false, err
	}
	waiting, err := transactionStore.ListWaitlistEntries(ctx, courseID, waitingStatuses)
	if err != nil {
		return WaitlistEntry{}, false, err
	}
	if len(waiting) == 0 {
		return WaitlistEntry{}, false, nil
	}
	entry := waiting[0]
	entry.Status = WaitlistStatusNotified
	entry.NotifiedAt = timePointer(now)
	if err := transactionStore.UpdateWaitlistEntry(ctx, entry); err != nil {
		return WaitlistEntry{}, false, err
	}
	if err := transactionStore.EnqueueNotification(ctx, service.waitlistSpotNotification(entry, course)); err != nil {
		return WaitlistEntry{}, false, err
	}
	return entry, true, nil
}

// settleWaitlistEntry closes the customer's waiting and notified entries once
// they hold a booking.
func settleWaitlistEntry(ctx context.Context, transactionStore Store, courseID string, email Email, now time.Time) error {
	entries, err := transactionStore.ListWaitlistEntries(ctx, courseID, openWaitlistStatuses)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Customer.Email != email {
			continue
		}
		entry.Status = WaitlistStatusRemoved
		entry.RemovedAt = timePointer(now)
		if err := transactionStore.UpdateWaitlistEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

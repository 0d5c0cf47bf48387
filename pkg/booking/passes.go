package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PassReport is the result of CheckActivePass.
type PassReport struct {
	Email           Email
	Pass            *Pass
	AvailablePasses []Pass
	IsFirstVisit    bool
	CanUseTrial     bool
	FirstName       string
	LastName        string
}

// HasActivePass reports whether a usable pass was found.
func (report PassReport) HasActivePass() bool {
	return report.Pass != nil
}

// CreatePassRequest describes a purchased pass.
type CreatePassRequest struct {
	Customer                      Customer
	Type                          PassType
	ExternalPaymentReference      string
	ExternalSubscriptionReference string

	// FirstCourseID records the first session against the course the pass was bought with.
	FirstCourseID string
}

// SessionUsage reports a pass balance after a use or refund.
type SessionUsage struct {
	PassID            string
	SessionsTotal     int
	SessionsUsed      int
	SessionsRemaining int
	Unlimited         bool
	Exhausted         bool
}

func usageOf(pass Pass) SessionUsage {
	return SessionUsage{
		PassID:            pass.ID,
		SessionsTotal:     pass.SessionsTotal,
		SessionsUsed:      pass.SessionsUsed,
		SessionsRemaining: pass.SessionsRemaining,
		Unlimited:         pass.IsUnlimited(),
		Exhausted:         pass.Status == PassStatusExhausted,
	}
}

// CheckActivePass returns the best usable pass of a customer and whether the
// customer is still eligible for a trial. Stale passes are expired or
// exhausted as a side effect.
func (service *Service) CheckActivePass(ctx context.Context, email Email) (PassReport, error) {
	if email.IsZero() {
		return PassReport{}, ErrInvalidEmail
	}
	var report PassReport
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		report = PassReport{Email: email}
		now := service.nowFn()
		usable, err := refreshPasses(ctx, transactionStore, email, now)
		if err != nil {
			return err
		}
		if len(usable) > 0 {
			best := usable[0]
			report.Pass = &best
			report.AvailablePasses = usable
		}
		bookings, err := transactionStore.ListBookingsByEmail(ctx, email, customerLookupLimit)
		if err != nil {
			return err
		}
		report.IsFirstVisit = len(bookings) == 0
		report.CanUseTrial = report.IsFirstVisit
		report.FirstName, report.LastName = knownCustomerName(bookings, usable)
		return nil
	})
	if operationError != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCheckPass, Email: email, Error: operationError})
		return PassReport{}, operationError
	}
	return report, nil
}

// refreshPasses persists lazy status transitions and returns the usable passes ranked best first.
func refreshPasses(ctx context.Context, transactionStore Store, email Email, now time.Time) ([]Pass, error) {
	passes, err := transactionStore.ListPassesByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	usable := make([]Pass, 0, len(passes))
	for _, pass := range passes {
		if pass.refreshStatus(now) {
			if err := transactionStore.UpdatePass(ctx, pass); err != nil {
				return nil, err
			}
		}
		if pass.usable(now) {
			usable = append(usable, pass)
		}
	}
	rankPasses(usable)
	return usable, nil
}

func knownCustomerName(bookings []Booking, passes []Pass) (string, string) {
	firstName, lastName := "", ""
	for _, booking := range bookings {
		if firstName == "" {
			firstName = booking.Customer.FirstName
		}
		if lastName == "" {
			lastName = booking.Customer.LastName
		}
	}
	for _, pass := range passes {
		if firstName == "" {
			firstName = pass.Customer.FirstName
		}
		if lastName == "" {
			lastName = pass.Customer.LastName
		}
	}
	return firstName, lastName
}

// CreatePass mints a pass for a completed purchase.
func (service *Service) CreatePass(ctx context.Context, request CreatePassRequest) (Pass, error) {
	var created Pass
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		pass, err := service.mintPass(ctx, transactionStore, request, service.nowFn())
		if err != nil {
			return err
		}
		created = pass
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCreatePass,
		Email:     request.Customer.Email,
		PassID:    created.ID,
		Amount:    created.PriceCents,
		Error:     operationError,
	})
	if operationError != nil {
		return Pass{}, operationError
	}
	return created, nil
}

func (service *Service) mintPass(ctx context.Context, transactionStore Store, request CreatePassRequest, now time.Time) (Pass, error) {
	if request.Customer.Email.IsZero() {
		return Pass{}, ErrInvalidEmail
	}
	price, err := service.pricing.PlanForType(request.Type)
	if err != nil {
		return Pass{}, err
	}
	subscriptionReference := strings.TrimSpace(request.ExternalSubscriptionReference)
	if subscriptionReference != "" && !price.Plan.Recurring {
		return Pass{}, fmt.Errorf("%w: subscription reference on non-recurring pass", ErrInvalidPaymentRef)
	}
	pass := newPass(service.newID(), request.Customer, *price.Plan, price.AmountCents, service.currency, now)
	pass.ExternalPaymentReference = strings.TrimSpace(request.ExternalPaymentReference)
	pass.ExternalSubscriptionReference = subscriptionReference
	// Without a provider subscription nothing will ever renew or cancel the pass.
	pass.IsRecurring = price.Plan.Recurring && subscriptionReference != ""
	if firstCourseID := strings.TrimSpace(request.FirstCourseID); firstCourseID != "" {
		if err := pass.consume(firstCourseID, now); err != nil {
			return Pass{}, err
		}
	}
	if err := transactionStore.CreatePass(ctx, pass); err != nil {
		return Pass{}, err
	}
	if err := transactionStore.EnqueueNotification(ctx, passPurchaseNotification(pass)); err != nil {
		return Pass{}, err
	}
	return pass, nil
}

// UseSession consumes one session of a pass for courseID.
func (service *Service) UseSession(ctx context.Context, passID string, courseID string) (SessionUsage, error) {
	if strings.TrimSpace(passID) == "" {
		return SessionUsage{}, ErrInvalidPassID
	}
	if strings.TrimSpace(courseID) == "" {
		return SessionUsage{}, ErrInvalidCourseID
	}
	var usage SessionUsage
	var email Email
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		pass, err := transactionStore.GetPass(ctx, passID)
		if err != nil {
			return err
		}
		email = pass.Customer.Email
		if err := pass.consume(courseID, service.nowFn()); err != nil {
			return err
		}
		if err := transactionStore.UpdatePass(ctx, pass); err != nil {
			return err
		}
		usage = usageOf(pass)
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationUseSession, Email: email, CourseID: courseID, PassID: passID, Error: operationError})
	if operationError != nil {
		return SessionUsage{}, operationError
	}
	return usage, nil
}

// RefundSession gives back the session a pass spent on courseID.
func (service *Service) RefundSession(ctx context.Context, passID string, courseID string) (SessionUsage, error) {
	if strings.TrimSpace(passID) == "" {
		return SessionUsage{}, ErrInvalidPassID
	}
	if strings.TrimSpace(courseID) == "" {
		return SessionUsage{}, ErrInvalidCourseID
	}
	var usage SessionUsage
	var email Email
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		pass, err := transactionStore.GetPass(ctx, passID)
		if err != nil {
			return err
		}
		email = pass.Customer.Email
		if err := pass.refund(courseID, service.nowFn()); err != nil {
			return err
		}
		if !pass.IsUnlimited() {
			if err := transactionStore.UpdatePass(ctx, pass); err != nil {
				return err
			}
		}
		usage = usageOf(pass)
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationRefundSession, Email: email, CourseID: courseID, PassID: passID, Error: operationError})
	if operationError != nil {
		return SessionUsage{}, operationError
	}
	return usage, nil
}

// RenewSubscription extends a recurring pass after the provider billed a new period.
func (service *Service) RenewSubscription(ctx context.Context, subscriptionReference string) (Pass, error) {
	if strings.TrimSpace(subscriptionReference) == "" {
		return Pass{}, ErrInvalidPaymentRef
	}
	var renewed Pass
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		pass, err := transactionStore.FindPassBySubscriptionReference(ctx, subscriptionReference)
		if err != nil {
			return err
		}
		if !pass.IsRecurring {
			return ErrNotRecurring
		}
		price, err := service.pricing.PlanForType(pass.Type)
		if err != nil {
			return err
		}
		now := service.nowFn()
		pass.ExpiryDate = now.Add(price.Plan.Validity)
		pass.Status = PassStatusActive
		pass.RenewalCount++
		pass.UpdatedAt = now
		if err := transactionStore.UpdatePass(ctx, pass); err != nil {
			return err
		}
		renewed = pass
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationRenewSubscription, Email: renewed.Customer.Email, PassID: renewed.ID, Error: operationError})
	if operationError != nil {
		return Pass{}, operationError
	}
	return renewed, nil
}

// CancelSubscription stops renewal. The pass stays usable until its expiry date.
func (service *Service) CancelSubscription(ctx context.Context, subscriptionReference string) (Pass, error) {
	if strings.TrimSpace(subscriptionReference) == "" {
		return Pass{}, ErrInvalidPaymentRef
	}
	var cancelled Pass
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		pass, err := transactionStore.FindPassBySubscriptionReference(ctx, subscriptionReference)
		if err != nil {
			return err
		}
		if !pass.IsRecurring {
			cancelled = pass
			return nil
		}
		now := service.nowFn()
		pass.IsRecurring = false
		pass.CancelledAt = timePointer(now)
		pass.UpdatedAt = now
		if err := transactionStore.UpdatePass(ctx, pass); err != nil {
			return err
		}
		cancelled = pass
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationCancelSubscription, Email: cancelled.Customer.Email, PassID: cancelled.ID, Error: operationError})
	if operationError != nil {
		return Pass{}, operationError
	}
	return cancelled, nil
}

// ListPasses returns every pass of a customer with its session history.
func (service *Service) ListPasses(ctx context.Context, email Email) ([]Pass, error) {
	if email.IsZero() {
		return nil, ErrInvalidEmail
	}
	return service.store.ListPassesByEmail(ctx, email)
}

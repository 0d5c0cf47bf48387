package booking

import (
	"fmt"
	"strings"
	"time"
)

// AmountCents is an integer currency amount in minor units.
type AmountCents int64

// Int64 returns the raw amount.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// Email is the normalized customer identity. There is no separate customer
// entity: bookings and passes are owned by the email alone.
type Email struct {
	value string
}

// NewEmail lowercases and trims raw input.
func NewEmail(raw string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return Email{}, fmt.Errorf("%w: empty value", ErrInvalidEmail)
	}
	at := strings.Index(normalized, "@")
	if at <= 0 || at == len(normalized)-1 || strings.ContainsAny(normalized, " \t") {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, normalized)
	}
	return Email{value: normalized}, nil
}

// String returns the normalized address.
func (email Email) String() string {
	return email.value
}

// IsZero reports whether the email was never set.
func (email Email) IsZero() bool {
	return email.value == ""
}

// PaymentMethod is how a booking is settled.
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodPass PaymentMethod = "pass"
)

// ParsePaymentMethod validates a payment method string.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case PaymentMethodCard:
		return PaymentMethodCard, nil
	case PaymentMethodCash:
		return PaymentMethodCash, nil
	case PaymentMethodPass:
		return PaymentMethodPass, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
	}
}

// String returns the stored representation.
func (method PaymentMethod) String() string {
	return string(method)
}

// PricingOption selects a row of the static pricing table.
type PricingOption string

const (
	PricingTrial            PricingOption = "trial"
	PricingSingle           PricingOption = "single"
	PricingMultiSessionPack PricingOption = "multi_session_pack"
	PricingSubscription     PricingOption = "subscription"
)

// ParsePricingOption validates a pricing option string.
func ParsePricingOption(raw string) (PricingOption, error) {
	switch PricingOption(strings.ToLower(strings.TrimSpace(raw))) {
	case PricingTrial:
		return PricingTrial, nil
	case PricingSingle:
		return PricingSingle, nil
	case PricingMultiSessionPack:
		return PricingMultiSessionPack, nil
	case PricingSubscription:
		return PricingSubscription, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPricingOption, raw)
	}
}

// String returns the stored representation.
func (option PricingOption) String() string {
	return string(option)
}

// BookingStatus defines the booking lifecycle.
type BookingStatus string

const (
	BookingStatusPending              BookingStatus = "pending"
	BookingStatusConfirmed            BookingStatus = "confirmed"
	BookingStatusConfirmedCashPending BookingStatus = "confirmed_cash_pending"
	BookingStatusCancelled            BookingStatus = "cancelled"
	BookingStatusCompleted            BookingStatus = "completed"
)

// ParseBookingStatus validates a stored booking status.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch status := BookingStatus(raw); status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusConfirmedCashPending, BookingStatusCancelled, BookingStatusCompleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
	}
}

// String returns the stored representation.
func (status BookingStatus) String() string {
	return string(status)
}

// IsActive reports whether the booking blocks another booking for the same
// customer on the same course.
func (status BookingStatus) IsActive() bool {
	switch status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusConfirmedCashPending:
		return true
	default:
		return false
	}
}

// IsParticipant reports whether the booking counts toward the participant counter.
func (status BookingStatus) IsParticipant() bool {
	return status == BookingStatusConfirmed || status == BookingStatusConfirmedCashPending
}

var (
	activeBookingStatuses      = []BookingStatus{BookingStatusPending, BookingStatusConfirmed, BookingStatusConfirmedCashPending}
	participantBookingStatuses = []BookingStatus{BookingStatusConfirmed, BookingStatusConfirmedCashPending}
)

// CourseStatus defines whether a course instance can still be booked.
type CourseStatus string

const (
	CourseStatusActive    CourseStatus = "active"
	CourseStatusCancelled CourseStatus = "cancelled"
)

// ParseCourseStatus validates a stored course status.
func ParseCourseStatus(raw string) (CourseStatus, error) {
	switch status := CourseStatus(raw); status {
	case CourseStatusActive, CourseStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCourseStatus, raw)
	}
}

// WaitlistStatus defines the waitlist entry lifecycle.
type WaitlistStatus string

const (
	WaitlistStatusWaiting  WaitlistStatus = "waiting"
	WaitlistStatusNotified WaitlistStatus = "notified"
	WaitlistStatusRemoved  WaitlistStatus = "removed"
)

var (
	waitingStatuses      = []WaitlistStatus{WaitlistStatusWaiting}
	openWaitlistStatuses = []WaitlistStatus{WaitlistStatusWaiting, WaitlistStatusNotified}
)

// ParseWaitlistStatus validates a stored waitlist status.
func ParseWaitlistStatus(raw string) (WaitlistStatus, error) {
	switch status := WaitlistStatus(raw); status {
	case WaitlistStatusWaiting, WaitlistStatusNotified, WaitlistStatusRemoved:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWaitlistStatus, raw)
	}
}

// PassType distinguishes counted packs from unlimited subscriptions.
type PassType string

const (
	PassTypeFixedCount PassType = "fixed_count"
	PassTypeUnlimited  PassType = "unlimited"
)

// ParsePassType validates a pass type string.
func ParsePassType(raw string) (PassType, error) {
	switch status := PassType(strings.ToLower(strings.TrimSpace(raw))); status {
	case PassTypeFixedCount, PassTypeUnlimited:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPassType, raw)
	}
}

// String returns the stored representation.
func (passType PassType) String() string {
	return string(passType)
}

// PassStatus defines the pass lifecycle.
type PassStatus string

const (
	PassStatusActive    PassStatus = "active"
	PassStatusExhausted PassStatus = "exhausted"
	PassStatusExpired   PassStatus = "expired"
	PassStatusCancelled PassStatus = "cancelled"
)

// ParsePassStatus validates a stored pass status.
func ParsePassStatus(raw string) (PassStatus, error) {
	switch status := PassStatus(raw); status {
	case PassStatusActive, PassStatusExhausted, PassStatusExpired, PassStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPassStatus, raw)
	}
}

// UnlimitedSessions is the session count sentinel of unlimited passes.
const UnlimitedSessions = -1

// ReservationOutcome is the decision returned by Reserve.
type ReservationOutcome string

const (
	OutcomeWaitlisted           ReservationOutcome = "waitlisted"
	OutcomeConfirmed            ReservationOutcome = "confirmed"
	OutcomeConfirmedPendingCash ReservationOutcome = "confirmed_pending_cash"
	OutcomePendingPayment       ReservationOutcome = "pending_payment"
)

// Course is one scheduled occurrence of a bookable class. Records are written
// by the calendar collaborator; the booking core only maintains ParticipantCount.
type Course struct {
	ID               string
	Title            string
	Description      string
	Location         string
	StartTime        time.Time
	EndTime          time.Time
	MaxCapacity      int
	ParticipantCount int
	PriceCents       AmountCents
	Status           CourseStatus
	UpdatedAt        time.Time
}

// Customer carries the contact fields attached to bookings and waitlist entries.
type Customer struct {
	Email     Email
	FirstName string
	LastName  string
	Phone     string
}

// Booking is one customer's claim on one course instance.
type Booking struct {
	ID                       string
	CourseID                 string
	Customer                 Customer
	PaymentMethod            PaymentMethod
	PricingOption            PricingOption
	AmountCents              AmountCents
	Currency                 string
	Status                   BookingStatus
	ExternalPaymentReference string
	PassReference            string

	// TransferredFrom and TransferredTo hold the course ids on either side
	// of a transfer.
	TransferredFrom    string
	TransferredTo      string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PaidAt             *time.Time
	CancelledAt        *time.Time
}

// WaitlistEntry is a FIFO request for a seat on a full course. Its position is
// never stored; it is the rank among waiting entries ordered by CreatedAt.
type WaitlistEntry struct {
	ID         string
	CourseID   string
	Customer   Customer
	Status     WaitlistStatus
	CreatedAt  time.Time
	NotifiedAt *time.Time
	RemovedAt  *time.Time
}

// SessionUse is one append-only line of a pass history.
type SessionUse struct {
	CourseID   string     `json:"courseId"`
	UsedAt     time.Time  `json:"usedAt"`
	Refunded   bool       `json:"refunded,omitempty"`
	RefundedAt *time.Time `json:"refundedAt,omitempty"`
}

// Pass is a grant of consumable sessions or unlimited access until ExpiryDate.
type Pass struct {
	ID                            string
	Customer                      Customer
	Type                          PassType
	SessionsTotal                 int
	SessionsUsed                  int
	SessionsRemaining             int
	PurchaseDate                  time.Time
	ExpiryDate                    time.Time
	Status                        PassStatus
	IsRecurring                   bool
	PriceCents                    AmountCents
	Currency                      string
	ExternalPaymentReference      string
	ExternalSubscriptionReference string
	RenewalCount                  int
	SessionsHistory               []SessionUse
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
	CancelledAt                   *time.Time
}

// IsUnlimited reports whether sessions are never decremented.
func (pass Pass) IsUnlimited() bool {
	return pass.Type == PassTypeUnlimited || pass.SessionsRemaining == UnlimitedSessions
}

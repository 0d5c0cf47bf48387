package grpcserver

import "time"

type ReserveRequest struct {
	CourseID      string `json:"course_id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"payment_method"`
	PricingOption string `json:"pricing_option"`
}

type ReserveResponse struct {
	Outcome           string `json:"outcome"`
	BookingID         string `json:"booking_id,omitempty"`
	WaitlistEntryID   string `json:"waitlist_entry_id,omitempty"`
	Position          int    `json:"position,omitempty"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency,omitempty"`
	RequiresPayment   bool   `json:"requires_payment"`
	ClientSecret      string `json:"client_secret,omitempty"`
	PaymentReference  string `json:"payment_reference,omitempty"`
	PassID            string `json:"pass_id,omitempty"`
	SessionsRemaining int    `json:"sessions_remaining,omitempty"`
}

type ConfirmPaymentRequest struct {
	BookingID             string `json:"booking_id"`
	PaymentReference      string `json:"payment_reference"`
	SubscriptionReference string `json:"subscription_reference"`
}

type ConfirmPaymentResponse struct {
	BookingID        string `json:"booking_id"`
	CourseID         string `json:"course_id"`
	Status           string `json:"status"`
	AlreadyConfirmed bool   `json:"already_confirmed"`
	PassID           string `json:"pass_id,omitempty"`
}

type AvailabilityRequest struct {
	CourseID string `json:"course_id"`
}

type AvailabilityResponse struct {
	CourseID         string    `json:"course_id"`
	Title            string    `json:"title"`
	Location         string    `json:"location"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	MaxCapacity      int       `json:"max_capacity"`
	ParticipantCount int       `json:"participant_count"`
	PendingCount     int       `json:"pending_count"`
	SpotsRemaining   int       `json:"spots_remaining"`
	IsFull           bool      `json:"is_full"`
	Bookable         bool      `json:"bookable"`
	PriceCents       int64     `json:"price_cents"`
}

type CancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type CancelBookingResponse struct {
	BookingID       string `json:"booking_id"`
	CourseID        string `json:"course_id"`
	PromotedEntryID string `json:"promoted_entry_id,omitempty"`
}

type TransferBookingRequest struct {
	BookingID   string `json:"booking_id"`
	NewCourseID string `json:"new_course_id"`
	Email       string `json:"email"`
}

type TransferBookingResponse struct {
	OldBookingID    string `json:"old_booking_id"`
	NewBookingID    string `json:"new_booking_id"`
	OldCourseID     string `json:"old_course_id"`
	NewCourseID     string `json:"new_course_id"`
	PromotedEntryID string `json:"promoted_entry_id,omitempty"`
}

type CheckPassRequest struct {
	Email string `json:"email"`
}

type PassSummary struct {
	PassID            string    `json:"pass_id"`
	Type              string    `json:"type"`
	Status            string    `json:"status"`
	SessionsRemaining int       `json:"sessions_remaining"`
	Unlimited         bool      `json:"unlimited"`
	ExpiryDate        time.Time `json:"expiry_date"`
}

type CheckPassResponse struct {
	HasActivePass   bool          `json:"has_active_pass"`
	Pass            *PassSummary  `json:"pass,omitempty"`
	AvailablePasses []PassSummary `json:"available_passes"`
	IsFirstVisit    bool          `json:"is_first_visit"`
	CanUseTrial     bool          `json:"can_use_trial"`
	FirstName       string        `json:"first_name,omitempty"`
	LastName        string        `json:"last_name,omitempty"`
}

type SessionRequest struct {
	PassID   string `json:"pass_id"`
	CourseID string `json:"course_id"`
}

type SessionResponse struct {
	PassID            string `json:"pass_id"`
	SessionsTotal     int    `json:"sessions_total"`
	SessionsUsed      int    `json:"sessions_used"`
	SessionsRemaining int    `json:"sessions_remaining"`
	Unlimited         bool   `json:"unlimited"`
	Exhausted         bool   `json:"exhausted"`
}

package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
)

type reserveRequest struct {
	CourseID      string `json:"courseId"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"paymentMethod"`
	PricingOption string `json:"pricingOption"`
}

type confirmRequest struct {
	PaymentReference      string `json:"paymentReference"`
	SubscriptionReference string `json:"subscriptionReference"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type transferRequest struct {
	NewCourseID string `json:"newCourseId"`
	Email       string `json:"email"`
}

type availabilityPayload struct {
	CourseID         string    `json:"courseId"`
	Title            string    `json:"title"`
	Location         string    `json:"location"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	MaxCapacity      int       `json:"maxCapacity"`
	ParticipantCount int       `json:"participantCount"`
	PendingCount     int       `json:"pendingCount"`
	SpotsRemaining   int       `json:"spotsRemaining"`
	IsFull           bool      `json:"isFull"`
	IsPast           bool      `json:"isPast"`
	Bookable         bool      `json:"bookable"`
	PriceCents       int64     `json:"priceCents"`
	Status           string    `json:"status"`
}

func newAvailabilityPayload(availability booking.Availability) availabilityPayload {
	return availabilityPayload{
		CourseID:         availability.CourseID,
		Title:            availability.Title,
		Location:         availability.Location,
		StartTime:        availability.StartTime,
		EndTime:          availability.EndTime,
		MaxCapacity:      availability.MaxCapacity,
		ParticipantCount: availability.ParticipantCount,
		PendingCount:     availability.PendingCount,
		SpotsRemaining:   availability.SpotsRemaining,
		IsFull:           availability.IsFull,
		IsPast:           availability.IsPast,
		Bookable:         availability.Bookable,
		PriceCents:       availability.PriceCents.Int64(),
		Status:           string(availability.Status),
	}
}

type reservePayload struct {
	Outcome           string `json:"outcome"`
	BookingID         string `json:"bookingId,omitempty"`
	WaitlistEntryID   string `json:"waitlistEntryId,omitempty"`
	Position          int    `json:"position,omitempty"`
	AmountCents       int64  `json:"amountCents"`
	Currency          string `json:"currency,omitempty"`
	RequiresPayment   bool   `json:"requiresPayment"`
	ClientSecret      string `json:"clientSecret,omitempty"`
	PaymentReference  string `json:"paymentReference,omitempty"`
	PassID            string `json:"passId,omitempty"`
	SessionsRemaining int    `json:"sessionsRemaining,omitempty"`
}

func newReservePayload(result booking.ReserveResult) reservePayload {
	return reservePayload{
		Outcome:           string(result.Outcome),
		BookingID:         result.BookingID,
		WaitlistEntryID:   result.WaitlistEntryID,
		Position:          result.Position,
		AmountCents:       result.AmountCents.Int64(),
		Currency:          result.Currency,
		RequiresPayment:   result.RequiresPayment,
		ClientSecret:      result.ClientSecret,
		PaymentReference:  result.PaymentReference,
		PassID:            result.PassID,
		SessionsRemaining: result.SessionsRemaining,
	}
}

type passPayload struct {
	PassID            string     `json:"passId"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	SessionsTotal     int        `json:"sessionsTotal"`
	SessionsUsed      int        `json:"sessionsUsed"`
	SessionsRemaining int        `json:"sessionsRemaining"`
	Unlimited         bool       `json:"unlimited"`
	PurchaseDate      time.Time  `json:"purchaseDate"`
	ExpiryDate        time.Time  `json:"expiryDate"`
	IsRecurring       bool       `json:"isRecurring"`
	RenewalCount      int        `json:"renewalCount"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
}

func newPassPayload(pass booking.Pass) passPayload {
	return passPayload{
		PassID:            pass.ID,
		Type:              string(pass.Type),
		Status:            string(pass.Status),
		SessionsTotal:     pass.SessionsTotal,
		SessionsUsed:      pass.SessionsUsed,
		SessionsRemaining: pass.SessionsRemaining,
		Unlimited:         pass.IsUnlimited(),
		PurchaseDate:      pass.PurchaseDate,
		ExpiryDate:        pass.ExpiryDate,
		IsRecurring:       pass.IsRecurring,
		RenewalCount:      pass.RenewalCount,
		CancelledAt:       pass.CancelledAt,
	}
}

func newPassPayloads(passes []booking.Pass) []passPayload {
	payloads := make([]passPayload, 0, len(passes))
	for _, pass := range passes {
		payloads = append(payloads, newPassPayload(pass))
	}
	return payloads
}

type passReportPayload struct {
	Email           string        `json:"email"`
	HasActivePass   bool          `json:"hasActivePass"`
	Pass            *passPayload  `json:"pass,omitempty"`
	AvailablePasses []passPayload `json:"availablePasses"`
	IsFirstVisit    bool          `json:"isFirstVisit"`
	CanUseTrial     bool          `json:"canUseTrial"`
	FirstName       string        `json:"firstName,omitempty"`
	LastName        string        `json:"lastName,omitempty"`
}

func newPassReportPayload(report booking.PassReport) passReportPayload {
	payload := passReportPayload{
		Email:           report.Email.String(),
		HasActivePass:   report.HasActivePass(),
		AvailablePasses: newPassPayloads(report.AvailablePasses),
		IsFirstVisit:    report.IsFirstVisit,
		CanUseTrial:     report.CanUseTrial,
		FirstName:       report.FirstName,
		LastName:        report.LastName,
	}
	if report.Pass != nil {
		pass := newPassPayload(*report.Pass)
		payload.Pass = &pass
	}
	return payload
}

type waitlistPositionPayload struct {
	EntryID  string `json:"entryId"`
	CourseID string `json:"courseId"`
	Status   string `json:"status"`
	Position int    `json:"position"`
	Waiting  int    `json:"waiting"`
}

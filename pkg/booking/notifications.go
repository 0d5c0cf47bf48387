package booking

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Notification is an outbound email queued in the same transaction as the
// state change that caused it.
type Notification struct {
	To       Email
	Template string
	Data     map[string]string
}

// SheetRow is one line appended to the bookings spreadsheet. Values follow
// SheetColumns.
type SheetRow struct {
	Values []string
}

// SheetColumns is the column order of the bookings spreadsheet (A:O).
var SheetColumns = []string{
	"timestamp",
	"firstName",
	"lastName",
	"email",
	"phone",
	"courseName",
	"courseDate",
	"courseTime",
	"paymentMethod",
	"paymentStatus",
	"amount",
	"status",
	"courseId",
	"bookingId",
	"notes",
}

// FormatAmount renders minor units as a decimal string.
func FormatAmount(amount AmountCents) string {
	raw := amount.Int64()
	sign := ""
	if raw < 0 {
		sign = "-"
		raw = -raw
	}
	return fmt.Sprintf("%s%d.%02d", sign, raw/100, raw%100)
}

func courseTemplateData(course Course) map[string]string {
	return map[string]string{
		"courseId":   course.ID,
		"courseName": course.Title,
		"courseDate": course.StartTime.Format(templateDateLayout),
		"courseTime": course.StartTime.Format(templateTimeLayout),
		"location":   course.Location,
	}
}

func bookingTemplateData(booking Booking, course Course) map[string]string {
	data := courseTemplateData(course)
	data["bookingId"] = booking.ID
	data["firstName"] = booking.Customer.FirstName
	data["lastName"] = booking.Customer.LastName
	data["paymentMethod"] = booking.PaymentMethod.String()
	data["amount"] = FormatAmount(booking.AmountCents)
	data["currency"] = booking.Currency
	return data
}

func bookingConfirmationNotification(booking Booking, course Course) Notification {
	template := TemplateBookingConfirmation
	if booking.Status == BookingStatusConfirmedCashPending {
		template = TemplateBookingCashPending
	}
	return Notification{To: booking.Customer.Email, Template: template, Data: bookingTemplateData(booking, course)}
}

func bookingSheetRow(booking Booking, course Course, recordedAt time.Time) SheetRow {
	methodLabel, paymentStatus := paymentColumns(booking)
	notes := ""
	switch {
	case booking.TransferredFrom != "":
		notes = "transferred from " + booking.TransferredFrom
	case booking.PassReference != "":
		notes = "pass " + booking.PassReference
	case booking.PricingOption == PricingTrial:
		notes = "trial"
	}
	return SheetRow{Values: []string{
		recordedAt.UTC().Format(sheetTimestampLayout),
		booking.Customer.FirstName,
		booking.Customer.LastName,
		booking.Customer.Email.String(),
		booking.Customer.Phone,
		course.Title,
		course.StartTime.Format(sheetDateLayout),
		course.StartTime.Format(sheetTimeLayout),
		methodLabel,
		paymentStatus,
		FormatAmount(booking.AmountCents),
		booking.Status.String(),
		course.ID,
		booking.ID,
		notes,
	}}
}

func paymentColumns(booking Booking) (string, string) {
	switch booking.PaymentMethod {
	case PaymentMethodCash:
		return paymentMethodLabelCash, paymentStatusOnSite
	case PaymentMethodPass:
		return paymentMethodLabelPass, paymentStatusPaid
	default:
		if booking.PaidAt != nil || booking.AmountCents == 0 {
			return paymentMethodLabelCard, paymentStatusPaid
		}
		return paymentMethodLabelCard, paymentStatusPending
	}
}

func (service *Service) bookingLink(courseID string, email Email) string {
	if service.bookingURL == "" {
		return ""
	}
	parsed, err := url.Parse(service.bookingURL)
	if err != nil {
		return service.bookingURL
	}
	query := parsed.Query()
	query.Set(bookingLinkCourseParam, courseID)
	query.Set(bookingLinkEmailParam, email.String())
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// recordConfirmedBooking queues the confirmation email and the sheet row of a
// booking that now holds a seat.
func (service *Service) recordConfirmedBooking(ctx context.Context, transactionStore Store, booking Booking, course Course, now time.Time) error {
	if err := transactionStore.EnqueueNotification(ctx, bookingConfirmationNotification(booking, course)); err != nil {
		return err
	}
	return transactionStore.EnqueueSheetRow(ctx, bookingSheetRow(booking, course, now))
}

func waitlistJoinedNotification(entry WaitlistEntry, course Course, position int) Notification {
	data := courseTemplateData(course)
	data["firstName"] = entry.Customer.FirstName
	data["position"] = strconv.Itoa(position)
	data["entryId"] = entry.ID
	return Notification{To: entry.Customer.Email, Template: TemplateWaitlistJoined, Data: data}
}

func (service *Service) waitlistSpotNotification(entry WaitlistEntry, course Course) Notification {
	data := courseTemplateData(course)
	data["firstName"] = entry.Customer.FirstName
	data["entryId"] = entry.ID
	data["bookingLink"] = service.bookingLink(course.ID, entry.Customer.Email)
	return Notification{To: entry.Customer.Email, Template: TemplateWaitlistSpotAvailable, Data: data}
}

func passPurchaseNotification(pass Pass) Notification {
	sessions := "unlimited"
	if !pass.IsUnlimited() {
		sessions = strconv.Itoa(pass.SessionsRemaining)
	}
	return Notification{To: pass.Customer.Email, Template: TemplatePassPurchaseConfirmation, Data: map[string]string{
		"passId":            pass.ID,
		"firstName":         pass.Customer.FirstName,
		"passType":          pass.Type.String(),
		"sessionsRemaining": sessions,
		"expiryDate":        pass.ExpiryDate.Format(templateDateLayout),
		"amount":            FormatAmount(pass.PriceCents),
		"currency":          pass.Currency,
	}}
}

// OutboxKind names the collaborator an outbox message is delivered to.
type OutboxKind string

const (
	OutboxKindEmail    OutboxKind = "email"
	OutboxKindSheetRow OutboxKind = "sheet_row"
)

// OutboxMessage is a claimed outbox row. Exactly one of Notification and
// Row is set, matching Kind.
type OutboxMessage struct {
	ID           string
	Kind         OutboxKind
	Notification *Notification
	Row          *SheetRow
	Attempts     int
}

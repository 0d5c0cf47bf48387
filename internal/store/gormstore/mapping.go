package gormstore

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"gorm.io/datatypes"
)

const emptyHistoryJSON = "[]"

func mapCourse(row Course) (booking.Course, error) {
	status, err := booking.ParseCourseStatus(row.Status)
	if err != nil {
		return booking.Course{}, err
	}
	price, err := booking.NewAmountCents(row.PriceCents)
	if err != nil {
		return booking.Course{}, err
	}
	return booking.Course{
		ID:               row.CourseID,
		Title:            row.Title,
		Description:      row.Description,
		Location:         row.Location,
		StartTime:        row.StartTime.UTC(),
		EndTime:          row.EndTime.UTC(),
		MaxCapacity:      row.MaxCapacity,
		ParticipantCount: row.ParticipantCount,
		PriceCents:       price,
		Status:           status,
		UpdatedAt:        row.UpdatedAt.UTC(),
	}, nil
}

func bookingModel(record booking.Booking) Booking {
	return Booking{
		BookingID:                record.ID,
		CourseID:                 record.CourseID,
		Email:                    record.Customer.Email.String(),
		FirstName:                record.Customer.FirstName,
		LastName:                 record.Customer.LastName,
		Phone:                    record.Customer.Phone,
		PaymentMethod:            record.PaymentMethod.String(),
		PricingOption:            record.PricingOption.String(),
		AmountCents:              record.AmountCents.Int64(),
		Currency:                 record.Currency,
		Status:                   record.Status.String(),
		ExternalPaymentReference: optionalString(record.ExternalPaymentReference),
		PassReference:            optionalString(record.PassReference),
		TransferredFrom:          optionalString(record.TransferredFrom),
		TransferredTo:            optionalString(record.TransferredTo),
		CancellationReason:       record.CancellationReason,
		CreatedAt:                record.CreatedAt.UTC(),
		UpdatedAt:                record.UpdatedAt.UTC(),
		PaidAt:                   optionalTime(record.PaidAt),
		CancelledAt:              optionalTime(record.CancelledAt),
	}
}

func mapBooking(row Booking) (booking.Booking, error) {
	email, err := booking.NewEmail(row.Email)
	if err != nil {
		return booking.Booking{}, err
	}
	method, err := booking.ParsePaymentMethod(row.PaymentMethod)
	if err != nil {
		return booking.Booking{}, err
	}
	option, err := booking.ParsePricingOption(row.PricingOption)
	if err != nil {
		return booking.Booking{}, err
	}
	status, err := booking.ParseBookingStatus(row.Status)
	if err != nil {
		return booking.Booking{}, err
	}
	amount, err := booking.NewAmountCents(row.AmountCents)
	if err != nil {
		return booking.Booking{}, err
	}
	return booking.Booking{
		ID:       row.BookingID,
		CourseID: row.CourseID,
		Customer: booking.Customer{
			Email:     email,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Phone:     row.Phone,
		},
		PaymentMethod:            method,
		PricingOption:            option,
		AmountCents:              amount,
		Currency:                 row.Currency,
		Status:                   status,
		ExternalPaymentReference: stringValue(row.ExternalPaymentReference),
		PassReference:            stringValue(row.PassReference),
		TransferredFrom:          stringValue(row.TransferredFrom),
		TransferredTo:            stringValue(row.TransferredTo),
		CancellationReason:       row.CancellationReason,
		CreatedAt:                row.CreatedAt.UTC(),
		UpdatedAt:                row.UpdatedAt.UTC(),
		PaidAt:                   optionalTime(row.PaidAt),
		CancelledAt:              optionalTime(row.CancelledAt),
	}, nil
}

func waitlistModel(entry booking.WaitlistEntry) WaitlistEntry {
	return WaitlistEntry{
		EntryID:    entry.ID,
		CourseID:   entry.CourseID,
		Email:      entry.Customer.Email.String(),
		FirstName:  entry.Customer.FirstName,
		LastName:   entry.Customer.LastName,
		Phone:      entry.Customer.Phone,
		Status:     string(entry.Status),
		CreatedAt:  entry.CreatedAt.UTC(),
		NotifiedAt: optionalTime(entry.NotifiedAt),
		RemovedAt:  optionalTime(entry.RemovedAt),
	}
}

func mapWaitlistEntry(row WaitlistEntry) (booking.WaitlistEntry, error) {
	email, err := booking.NewEmail(row.Email)
	if err != nil {
		return booking.WaitlistEntry{}, err
	}
	status, err := booking.ParseWaitlistStatus(row.Status)
	if err != nil {
		return booking.WaitlistEntry{}, err
	}
	return booking.WaitlistEntry{
		ID:       row.EntryID,
		CourseID: row.CourseID,
		Customer: booking.Customer{
			Email:     email,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Phone:     row.Phone,
		},
		Status:     status,
		CreatedAt:  row.CreatedAt.UTC(),
		NotifiedAt: optionalTime(row.NotifiedAt),
		RemovedAt:  optionalTime(row.RemovedAt),
	}, nil
}

func passModel(pass booking.Pass) (Pass, error) {
	history := []booking.SessionUse{}
	if pass.SessionsHistory != nil {
		history = pass.SessionsHistory
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return Pass{}, err
	}
	return Pass{
		PassID:                        pass.ID,
		Email:                         pass.Customer.Email.String(),
		FirstName:                     pass.Customer.FirstName,
		LastName:                      pass.Customer.LastName,
		Phone:                         pass.Customer.Phone,
		Type:                          pass.Type.String(),
		SessionsTotal:                 pass.SessionsTotal,
		SessionsUsed:                  pass.SessionsUsed,
		SessionsRemaining:             pass.SessionsRemaining,
		PurchaseDate:                  pass.PurchaseDate.UTC(),
		ExpiryDate:                    pass.ExpiryDate.UTC(),
		Status:                        string(pass.Status),
		IsRecurring:                   pass.IsRecurring,
		PriceCents:                    pass.PriceCents.Int64(),
		Currency:                      pass.Currency,
		ExternalPaymentReference:      optionalString(pass.ExternalPaymentReference),
		ExternalSubscriptionReference: optionalString(pass.ExternalSubscriptionReference),
		RenewalCount:                  pass.RenewalCount,
		SessionsHistory:               datatypes.JSON(encoded),
		CreatedAt:                     pass.CreatedAt.UTC(),
		UpdatedAt:                     pass.UpdatedAt.UTC(),
		CancelledAt:                   optionalTime(pass.CancelledAt),
	}, nil
}

func mapPass(row Pass) (booking.Pass, error) {
	email, err := booking.NewEmail(row.Email)
	if err != nil {
		return booking.Pass{}, err
	}
	passType, err := booking.ParsePassType(row.Type)
	if err != nil {
		return booking.Pass{}, err
	}
	status, err := booking.ParsePassStatus(row.Status)
	if err != nil {
		return booking.Pass{}, err
	}
	price, err := booking.NewAmountCents(row.PriceCents)
	if err != nil {
		return booking.Pass{}, err
	}
	raw := []byte(row.SessionsHistory)
	if len(raw) == 0 {
		raw = []byte(emptyHistoryJSON)
	}
	var history []booking.SessionUse
	if err := json.Unmarshal(raw, &history); err != nil {
		return booking.Pass{}, err
	}
	return booking.Pass{
		ID: row.PassID,
		Customer: booking.Customer{
			Email:     email,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Phone:     row.Phone,
		},
		Type:                          passType,
		SessionsTotal:                 row.SessionsTotal,
		SessionsUsed:                  row.SessionsUsed,
		SessionsRemaining:             row.SessionsRemaining,
		PurchaseDate:                  row.PurchaseDate.UTC(),
		ExpiryDate:                    row.ExpiryDate.UTC(),
		Status:                        status,
		IsRecurring:                   row.IsRecurring,
		PriceCents:                    price,
		Currency:                      row.Currency,
		ExternalPaymentReference:      stringValue(row.ExternalPaymentReference),
		ExternalSubscriptionReference: stringValue(row.ExternalSubscriptionReference),
		RenewalCount:                  row.RenewalCount,
		SessionsHistory:               history,
		CreatedAt:                     row.CreatedAt.UTC(),
		UpdatedAt:                     row.UpdatedAt.UTC(),
		CancelledAt:                   optionalTime(row.CancelledAt),
	}, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

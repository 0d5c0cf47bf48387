package booking

import (
	"context"
	"strings"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation string
	Email     Email
	CourseID  string
	BookingID string
	EntryID   string
	PassID    string
	Amount    AmountCents
	Outcome   string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithPaymentGateway wires the online payment provider used for card bookings.
func WithPaymentGateway(gateway PaymentGateway) ServiceOption {
	return func(service *Service) {
		service.payments = gateway
	}
}

// WithPricing replaces the default price list.
func WithPricing(pricing PricingTable) ServiceOption {
	return func(service *Service) {
		if len(pricing) > 0 {
			service.pricing = pricing
		}
	}
}

// WithCurrency sets the ISO currency stamped on bookings and passes.
func WithCurrency(currency string) ServiceOption {
	return func(service *Service) {
		if trimmed := strings.ToUpper(strings.TrimSpace(currency)); trimmed != "" {
			service.currency = trimmed
		}
	}
}

// WithIDGenerator replaces the uuid generator for new records.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.newID = generate
		}
	}
}

// WithBookingURL sets the public booking page linked from waitlist promotions.
func WithBookingURL(bookingURL string) ServiceOption {
	return func(service *Service) {
		service.bookingURL = strings.TrimSpace(bookingURL)
	}
}

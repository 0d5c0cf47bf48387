package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	eventPaymentIntentSucceeded = "payment_intent.succeeded"
	eventInvoicePaid            = "invoice.paid"
	eventSubscriptionDeleted    = "customer.subscription.deleted"
)

var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// BookingEvents is the part of the booking service driven by Stripe events.
type BookingEvents interface {
	ConfirmPayment(ctx context.Context, confirmation booking.PaymentConfirmation) (booking.ConfirmResult, error)
	ConfirmPaymentByReference(ctx context.Context, reference string, subscriptionReference string) (booking.ConfirmResult, error)
	RenewSubscription(ctx context.Context, subscriptionReference string) (booking.Pass, error)
	CancelSubscription(ctx context.Context, subscriptionReference string) (booking.Pass, error)
}

// WebhookOutcome reports what a webhook delivery did.
type WebhookOutcome struct {
	EventID   string
	EventType string
	Handled   bool
	Detail    string
	CourseID  string
}

// WebhookProcessor verifies Stripe deliveries and applies them.
type WebhookProcessor struct {
	secret string
	events BookingEvents
	logger *zap.Logger
}

func NewWebhookProcessor(secret string, events BookingEvents, logger *zap.Logger) (*WebhookProcessor, error) {
	if secret == "" || events == nil {
		return nil, fmt.Errorf("%w: webhook secret and booking events are required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookProcessor{secret: secret, events: events, logger: logger}, nil
}

// Process verifies signature against payload and dispatches the event.
// Events the booking core does not care about are acknowledged unhandled.
func (processor *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, processor.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookOutcome{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	outcome := WebhookOutcome{EventID: event.ID, EventType: string(event.Type)}
	switch outcome.EventType {
	case eventPaymentIntentSucceeded:
		return processor.paymentSucceeded(ctx, event, outcome)
	case eventInvoicePaid:
		return processor.invoicePaid(ctx, event, outcome)
	case eventSubscriptionDeleted:
		return processor.subscriptionDeleted(ctx, event, outcome)
	default:
		outcome.Detail = "ignored"
		return outcome, nil
	}
}

func (processor *WebhookProcessor) paymentSucceeded(ctx context.Context, event stripe.Event, outcome WebhookOutcome) (WebhookOutcome, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return outcome, fmt.Errorf("decode payment intent: %w", err)
	}
	if intent.Metadata[metadataType] != metadataTypeBooking {
		outcome.Detail = "not a booking payment"
		return outcome, nil
	}
	subscriptionReference := intent.Metadata[metadataSubscriptionID]
	var (
		result booking.ConfirmResult
		err    error
	)
	if bookingID := intent.Metadata[metadataBookingID]; bookingID != "" {
		result, err = processor.events.ConfirmPayment(ctx, booking.PaymentConfirmation{
			BookingID:             bookingID,
			PaymentReference:      intent.ID,
			SubscriptionReference: subscriptionReference,
		})
	} else {
		result, err = processor.events.ConfirmPaymentByReference(ctx, intent.ID, subscriptionReference)
	}
	if err != nil {
		if errors.Is(err, booking.ErrPaymentMismatch) {
			processor.logger.Warn("payment reference mismatch", zap.String("event_id", event.ID), zap.String("payment_intent", intent.ID))
		}
		return outcome, err
	}
	outcome.Handled = true
	outcome.CourseID = result.CourseID
	outcome.Detail = string(result.Status)
	if result.AlreadyConfirmed {
		outcome.Detail = "already confirmed"
	}
	return outcome, nil
}

func (processor *WebhookProcessor) invoicePaid(ctx context.Context, event stripe.Event, outcome WebhookOutcome) (WebhookOutcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return outcome, fmt.Errorf("decode invoice: %w", err)
	}
	// The first invoice of a subscription is the purchase itself.
	if invoice.Subscription == nil || invoice.Subscription.ID == "" || invoice.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		outcome.Detail = "not a renewal"
		return outcome, nil
	}
	pass, err := processor.events.RenewSubscription(ctx, invoice.Subscription.ID)
	if errors.Is(err, booking.ErrPassNotFound) {
		outcome.Detail = "unknown subscription"
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}
	outcome.Handled = true
	outcome.Detail = pass.ID
	return outcome, nil
}

func (processor *WebhookProcessor) subscriptionDeleted(ctx context.Context, event stripe.Event, outcome WebhookOutcome) (WebhookOutcome, error) {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return outcome, fmt.Errorf("decode subscription: %w", err)
	}
	pass, err := processor.events.CancelSubscription(ctx, subscription.ID)
	if errors.Is(err, booking.ErrPassNotFound) {
		outcome.Detail = "unknown subscription"
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}
	outcome.Handled = true
	outcome.Detail = pass.ID
	return outcome, nil
}

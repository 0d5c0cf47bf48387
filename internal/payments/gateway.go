// Package payments connects the booking core to Stripe.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const (
	metadataBookingID      = "bookingId"
	metadataCourseID       = "courseId"
	metadataEmail          = "email"
	metadataPricingOption  = "pricingOption"
	metadataType           = "type"
	metadataSubscriptionID = "subscriptionId"
	metadataTypeBooking    = "course_booking"
	idempotencyKeyPrefix   = "booking-intent-"

	customerKeyPrefix     = "booking-customer-"
	subscriptionKeyPrefix = "booking-subscription-"
	subscriptionExpand    = "latest_invoice.payment_intent"
	incompletePayment     = "default_incomplete"
)

var ErrInvalidConfig = errors.New("payments: invalid config")

// DefaultPaymentMethodTypes are offered when none are configured.
var DefaultPaymentMethodTypes = []string{"card", "twint"}

// Gateway creates Stripe PaymentIntents for pending bookings. It implements
// booking.PaymentGateway.
type Gateway struct {
	api                *client.API
	backends           *stripe.Backends
	paymentMethodTypes []string
	subscriptionPrice  string
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithBackends routes API calls through custom backends.
func WithBackends(backends *stripe.Backends) GatewayOption {
	return func(gateway *Gateway) {
		gateway.backends = backends
	}
}

// WithPaymentMethodTypes restricts the methods offered at checkout.
func WithPaymentMethodTypes(types ...string) GatewayOption {
	return func(gateway *Gateway) {
		if len(types) > 0 {
			gateway.paymentMethodTypes = types
		}
	}
}

// WithSubscriptionPrice bills subscription purchases as a Stripe subscription
// on priceID. Without it they are charged once and the pass does not renew.
func WithSubscriptionPrice(priceID string) GatewayOption {
	return func(gateway *Gateway) {
		gateway.subscriptionPrice = strings.TrimSpace(priceID)
	}
}

func NewGateway(secretKey string, options ...GatewayOption) (*Gateway, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, fmt.Errorf("%w: stripe secret key is required", ErrInvalidConfig)
	}
	gateway := &Gateway{paymentMethodTypes: DefaultPaymentMethodTypes}
	for _, option := range options {
		option(gateway)
	}
	gateway.api = client.New(secretKey, gateway.backends)
	return gateway, nil
}

// CreatePaymentIntent opens an intent tagged with the booking id. Retries for
// the same booking reuse the intent through the idempotency key.
func (gateway *Gateway) CreatePaymentIntent(ctx context.Context, request booking.PaymentIntentRequest) (booking.PaymentIntent, error) {
	if request.PricingOption == booking.PricingSubscription && gateway.subscriptionPrice != "" {
		return gateway.createSubscription(ctx, request)
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(request.AmountCents.Int64()),
		Currency:           stripe.String(strings.ToLower(request.Currency)),
		PaymentMethodTypes: stripe.StringSlice(gateway.paymentMethodTypes),
		ReceiptEmail:       stripe.String(request.Email.String()),
		Description:        stripe.String(request.CourseTitle),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKeyPrefix + request.BookingID)
	params.Metadata = bookingMetadata(request)

	intent, err := gateway.api.PaymentIntents.New(params)
	if err != nil {
		return booking.PaymentIntent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return booking.PaymentIntent{Reference: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// createSubscription starts an incomplete subscription for the customer and
// returns the PaymentIntent of its first invoice. The intent carries the
// booking metadata plus the subscription id, so the payment webhook can mint
// a renewable pass.
func (gateway *Gateway) createSubscription(ctx context.Context, request booking.PaymentIntentRequest) (booking.PaymentIntent, error) {
	customerParams := &stripe.CustomerParams{Email: stripe.String(request.Email.String())}
	customerParams.Context = ctx
	customerParams.SetIdempotencyKey(customerKeyPrefix + request.BookingID)
	customer, err := gateway.api.Customers.New(customerParams)
	if err != nil {
		return booking.PaymentIntent{}, fmt.Errorf("create customer: %w", err)
	}

	subscriptionParams := &stripe.SubscriptionParams{
		Customer:        stripe.String(customer.ID),
		Items:           []*stripe.SubscriptionItemsParams{{Price: stripe.String(gateway.subscriptionPrice)}},
		PaymentBehavior: stripe.String(incompletePayment),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String(string(stripe.SubscriptionPaymentSettingsSaveDefaultPaymentMethodOnSubscription)),
		},
	}
	subscriptionParams.Context = ctx
	subscriptionParams.SetIdempotencyKey(subscriptionKeyPrefix + request.BookingID)
	subscriptionParams.AddExpand(subscriptionExpand)
	subscriptionParams.Metadata = bookingMetadata(request)
	subscription, err := gateway.api.Subscriptions.New(subscriptionParams)
	if err != nil {
		return booking.PaymentIntent{}, fmt.Errorf("create subscription: %w", err)
	}
	if subscription.LatestInvoice == nil || subscription.LatestInvoice.PaymentIntent == nil {
		return booking.PaymentIntent{}, fmt.Errorf("create subscription: %s has no payment intent", subscription.ID)
	}

	intentParams := &stripe.PaymentIntentParams{Metadata: bookingMetadata(request)}
	intentParams.Context = ctx
	intentParams.AddMetadata(metadataSubscriptionID, subscription.ID)
	intent, err := gateway.api.PaymentIntents.Update(subscription.LatestInvoice.PaymentIntent.ID, intentParams)
	if err != nil {
		return booking.PaymentIntent{}, fmt.Errorf("tag subscription payment intent: %w", err)
	}
	return booking.PaymentIntent{Reference: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func bookingMetadata(request booking.PaymentIntentRequest) map[string]string {
	return map[string]string{
		metadataType:          metadataTypeBooking,
		metadataBookingID:     request.BookingID,
		metadataCourseID:      request.CourseID,
		metadataEmail:         request.Email.String(),
		metadataPricingOption: string(request.PricingOption),
	}
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test_secret"

func mustEmail(test *testing.T, raw string) booking.Email {
	test.Helper()
	email, err := booking.NewEmail(raw)
	if err != nil {
		test.Fatalf("email: %v", err)
	}
	return email
}

func newTestGateway(test *testing.T, handler http.HandlerFunc, options ...GatewayOption) *Gateway {
	test.Helper()
	server := httptest.NewServer(handler)
	test.Cleanup(server.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		HTTPClient:        server.Client(),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		MaxNetworkRetries: stripe.Int64(0),
	})
	options = append(options, WithBackends(&stripe.Backends{API: backend, Connect: backend, Uploads: backend}))
	gateway, err := NewGateway("sk_test_123", options...)
	if err != nil {
		test.Fatalf("gateway: %v", err)
	}
	return gateway
}

func TestNewGatewayRequiresKey(test *testing.T) {
	test.Parallel()
	if _, err := NewGateway(" "); !errors.Is(err, ErrInvalidConfig) {
		test.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCreatePaymentIntent(test *testing.T) {
	test.Parallel()
	var form map[string][]string
	var idempotencyKey, path string
	gateway := newTestGateway(test, func(writer http.ResponseWriter, request *http.Request) {
		path = request.URL.Path
		idempotencyKey = request.Header.Get("Idempotency-Key")
		if err := request.ParseForm(); err != nil {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}
		form = request.PostForm
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc"}`))
	})

	intent, err := gateway.CreatePaymentIntent(context.Background(), booking.PaymentIntentRequest{
		BookingID:     "booking-1",
		CourseID:      "course-1",
		CourseTitle:   "Yin Yoga",
		Email:         mustEmail(test, "ada@example.com"),
		AmountCents:   2500,
		Currency:      "CHF",
		PricingOption: booking.PricingSingle,
	})
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if intent.Reference != "pi_123" || intent.ClientSecret != "pi_123_secret_abc" {
		test.Fatalf("unexpected intent %+v", intent)
	}
	if path != "/v1/payment_intents" || idempotencyKey != "booking-intent-booking-1" {
		test.Fatalf("unexpected request %s key=%s", path, idempotencyKey)
	}
	expected := map[string]string{
		"amount":                  "2500",
		"currency":                "chf",
		"metadata[type]":          metadataTypeBooking,
		"metadata[bookingId]":     "booking-1",
		"metadata[pricingOption]": "single",
		"payment_method_types[0]": "card",
		"receipt_email":           "ada@example.com",
	}
	for key, value := range expected {
		if values := form[key]; len(values) != 1 || values[0] != value {
			test.Fatalf("form %s: expected %q, got %v", key, value, values)
		}
	}
}

func TestCreatePaymentIntentSurfacesStripeError(test *testing.T) {
	test.Parallel()
	gateway := newTestGateway(test, func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad amount"}}`))
	})
	_, err := gateway.CreatePaymentIntent(context.Background(), booking.PaymentIntentRequest{
		BookingID: "booking-1", Email: mustEmail(test, "ada@example.com"), AmountCents: 1, Currency: "CHF",
	})
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		test.Fatalf("expected stripe error, got %v", err)
	}
}

type stubEvents struct {
	confirmations []booking.PaymentConfirmation
	references    []string
	renewed       []string
	cancelled     []string
	err           error
}

func (events *stubEvents) ConfirmPayment(ctx context.Context, confirmation booking.PaymentConfirmation) (booking.ConfirmResult, error) {
	events.confirmations = append(events.confirmations, confirmation)
	return booking.ConfirmResult{BookingID: confirmation.BookingID, Status: booking.BookingStatusConfirmed}, events.err
}

func (events *stubEvents) ConfirmPaymentByReference(ctx context.Context, reference string, subscriptionReference string) (booking.ConfirmResult, error) {
	events.references = append(events.references, reference)
	return booking.ConfirmResult{Status: booking.BookingStatusConfirmed, AlreadyConfirmed: true}, events.err
}

func (events *stubEvents) RenewSubscription(ctx context.Context, subscriptionReference string) (booking.Pass, error) {
	events.renewed = append(events.renewed, subscriptionReference)
	return booking.Pass{ID: "pass-1"}, events.err
}

func (events *stubEvents) CancelSubscription(ctx context.Context, subscriptionReference string) (booking.Pass, error) {
	events.cancelled = append(events.cancelled, subscriptionReference)
	return booking.Pass{ID: "pass-1"}, events.err
}

func signedEvent(test *testing.T, eventType string, object string) ([]byte, string) {
	test.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2023-10-16","type":%q,"data":{"object":%s}}`, eventType, object))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func mustProcessor(test *testing.T, events BookingEvents) *WebhookProcessor {
	test.Helper()
	processor, err := NewWebhookProcessor(testWebhookSecret, events, zap.NewNop())
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	return processor
}

func TestWebhookRejectsBadSignature(test *testing.T) {
	test.Parallel()
	processor := mustProcessor(test, &stubEvents{})
	payload, _ := signedEvent(test, eventPaymentIntentSucceeded, `{"id":"pi_1"}`)
	if _, err := processor.Process(context.Background(), payload, "t=1,v1=bogus"); !errors.Is(err, ErrInvalidSignature) {
		test.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestWebhookDispatchesEvents(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name          string
		eventType     string
		object        string
		handled       bool
		confirmations int
		references    int
		renewed       int
		cancelled     int
	}{
		{
			name:          "payment with booking id",
			eventType:     eventPaymentIntentSucceeded,
			object:        `{"id":"pi_1","object":"payment_intent","metadata":{"type":"course_booking","bookingId":"booking-1"}}`,
			handled:       true,
			confirmations: 1,
		},
		{
			name:       "payment by reference",
			eventType:  eventPaymentIntentSucceeded,
			object:     `{"id":"pi_2","object":"payment_intent","metadata":{"type":"course_booking"}}`,
			handled:    true,
			references: 1,
		},
		{
			name:      "foreign payment",
			eventType: eventPaymentIntentSucceeded,
			object:    `{"id":"pi_3","object":"payment_intent","metadata":{"type":"merch"}}`,
		},
		{
			name:      "renewal invoice",
			eventType: eventInvoicePaid,
			object:    `{"id":"in_1","object":"invoice","billing_reason":"subscription_cycle","subscription":"sub_1"}`,
			handled:   true,
			renewed:   1,
		},
		{
			name:      "first invoice",
			eventType: eventInvoicePaid,
			object:    `{"id":"in_2","object":"invoice","billing_reason":"subscription_create","subscription":"sub_1"}`,
		},
		{
			name:      "subscription deleted",
			eventType: eventSubscriptionDeleted,
			object:    `{"id":"sub_1","object":"subscription"}`,
			handled:   true,
			cancelled: 1,
		},
		{
			name:      "unrelated event",
			eventType: "charge.refunded",
			object:    `{"id":"ch_1","object":"charge"}`,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			events := &stubEvents{}
			processor := mustProcessor(test, events)
			payload, header := signedEvent(test, testCase.eventType, testCase.object)
			outcome, err := processor.Process(context.Background(), payload, header)
			if err != nil {
				test.Fatalf("process: %v", err)
			}
			if outcome.Handled != testCase.handled || outcome.EventType != testCase.eventType {
				test.Fatalf("unexpected outcome %+v", outcome)
			}
			if len(events.confirmations) != testCase.confirmations || len(events.references) != testCase.references ||
				len(events.renewed) != testCase.renewed || len(events.cancelled) != testCase.cancelled {
				test.Fatalf("unexpected calls %+v", events)
			}
		})
	}
}

func TestWebhookUnknownSubscriptionAcknowledged(test *testing.T) {
	test.Parallel()
	processor := mustProcessor(test, &stubEvents{err: booking.ErrPassNotFound})
	payload, header := signedEvent(test, eventSubscriptionDeleted, `{"id":"sub_9","object":"subscription"}`)
	outcome, err := processor.Process(context.Background(), payload, header)
	if err != nil {
		test.Fatalf("process: %v", err)
	}
	if outcome.Handled || outcome.Detail != "unknown subscription" {
		test.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestWebhookSurfacesMismatch(test *testing.T) {
	test.Parallel()
	processor := mustProcessor(test, &stubEvents{err: booking.ErrPaymentMismatch})
	payload, header := signedEvent(test, eventPaymentIntentSucceeded, `{"id":"pi_1","metadata":{"type":"course_booking","bookingId":"booking-1"}}`)
	if _, err := processor.Process(context.Background(), payload, header); !errors.Is(err, booking.ErrPaymentMismatch) {
		test.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/internal/payments"
	"github.com/MarkoPoloResearchLab/coursebook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var apiEpoch = time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)

type memoryCache struct {
	mutex   sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (cache *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	value, ok := cache.entries[key]
	return value, ok, nil
}

func (cache *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.entries[key] = value
	return nil
}

func (cache *memoryCache) Delete(ctx context.Context, keys ...string) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	for _, key := range keys {
		delete(cache.entries, key)
	}
	return nil
}

func (cache *memoryCache) has(key string) bool {
	_, ok, _ := cache.Get(context.Background(), key)
	return ok
}

type stubWebhooks struct {
	outcome payments.WebhookOutcome
	err     error
}

func (webhooks *stubWebhooks) Process(ctx context.Context, payload []byte, signature string) (payments.WebhookOutcome, error) {
	return webhooks.outcome, webhooks.err
}

type apiFixture struct {
	router  http.Handler
	store   *gormstore.Store
	service *booking.Service
	cache   *memoryCache
}

func newFixture(test *testing.T, cfg Config, options ...Option) apiFixture {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(test.TempDir()+"/coursebook.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := gormstore.AutoMigrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	clock := func() time.Time { return apiEpoch }
	store := gormstore.New(db, gormstore.WithClock(clock))
	service, err := booking.NewService(store, clock, booking.WithOperationLogger(NewZapOperationLogger(zap.NewNop())))
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	cache := newMemoryCache()
	options = append([]Option{WithAvailabilityCache(cache), WithClock(clock)}, options...)
	server, err := NewServer(cfg, service, zap.NewNop(), options...)
	if err != nil {
		test.Fatalf("server: %v", err)
	}
	return apiFixture{router: server.Router(), store: store, service: service, cache: cache}
}

func (fixture apiFixture) seedCourse(test *testing.T, courseID string, capacity int) {
	test.Helper()
	err := fixture.service.SyncCourse(context.Background(), booking.Course{
		ID:          courseID,
		Title:       "Pilates " + courseID,
		Location:    "Studio C",
		StartTime:   apiEpoch.Add(24 * time.Hour),
		EndTime:     apiEpoch.Add(25 * time.Hour),
		MaxCapacity: capacity,
		PriceCents:  2500,
	})
	if err != nil {
		test.Fatalf("seed course: %v", err)
	}
}

func (fixture apiFixture) do(test *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	test.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			test.Fatalf("encode: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)
	return recorder
}

func decode(test *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	test.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		test.Fatalf("decode %q: %v", recorder.Body.String(), err)
	}
	return body
}

func errorCodeOf(test *testing.T, recorder *httptest.ResponseRecorder) string {
	test.Helper()
	envelope, _ := decode(test, recorder)["error"].(map[string]any)
	code, _ := envelope["code"].(string)
	return code
}

func cashBooking(email string, courseID string) reserveRequest {
	return reserveRequest{
		CourseID:      courseID,
		Email:         email,
		FirstName:     "Ada",
		LastName:      "Lovelace",
		PaymentMethod: "cash",
		PricingOption: "single",
	}
}

func TestHealthz(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	if recorder := fixture.do(test, http.MethodGet, "/healthz", nil); recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestReserveLifecycle(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	fixture.seedCourse(test, "course-1", 1)

	recorder := fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("ada@example.com", "course-1"))
	if recorder.Code != http.StatusCreated {
		test.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decode(test, recorder)
	if body["outcome"] != string(booking.OutcomeConfirmedPendingCash) {
		test.Fatalf("unexpected outcome %v", body["outcome"])
	}
	bookingID, _ := body["bookingId"].(string)

	duplicate := fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("ada@example.com", "course-1"))
	if duplicate.Code != http.StatusConflict || errorCodeOf(test, duplicate) != "already_booked" {
		test.Fatalf("expected already_booked conflict, got %d %s", duplicate.Code, duplicate.Body.String())
	}

	waitlisted := fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("grace@example.com", "course-1"))
	if waitlisted.Code != http.StatusAccepted {
		test.Fatalf("expected 202, got %d: %s", waitlisted.Code, waitlisted.Body.String())
	}
	waitBody := decode(test, waitlisted)
	if waitBody["outcome"] != string(booking.OutcomeWaitlisted) || waitBody["position"] != float64(1) {
		test.Fatalf("unexpected waitlist response %v", waitBody)
	}

	position := fixture.do(test, http.MethodGet, "/api/waitlist/position?email=grace@example.com&courseId=course-1", nil)
	if position.Code != http.StatusOK || decode(test, position)["position"] != float64(1) {
		test.Fatalf("unexpected position %d %s", position.Code, position.Body.String())
	}

	cancelled := fixture.do(test, http.MethodPost, "/api/bookings/"+bookingID+"/cancel", nil)
	if cancelled.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", cancelled.Code, cancelled.Body.String())
	}
	if promoted, _ := decode(test, cancelled)["promotedEntryId"].(string); promoted != waitBody["waitlistEntryId"] {
		test.Fatalf("expected waiting customer promoted, got %q", promoted)
	}

	again := fixture.do(test, http.MethodPost, "/api/bookings/"+bookingID+"/cancel", nil)
	if again.Code != http.StatusConflict || errorCodeOf(test, again) != "already_cancelled" {
		test.Fatalf("expected already_cancelled, got %d %s", again.Code, again.Body.String())
	}
}

func TestReserveRejectsInvalidInput(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	testCases := []struct {
		name    string
		request reserveRequest
	}{
		{name: "email", request: cashBooking("not-an-email", "course-1")},
		{name: "method", request: reserveRequest{CourseID: "course-1", Email: "a@example.com", PaymentMethod: "barter", PricingOption: "single"}},
		{name: "pricing", request: reserveRequest{CourseID: "course-1", Email: "a@example.com", PaymentMethod: "cash", PricingOption: "vip"}},
	}
	for _, testCase := range testCases {
		recorder := fixture.do(test, http.MethodPost, "/api/bookings", testCase.request)
		if recorder.Code != http.StatusBadRequest || errorCodeOf(test, recorder) != "invalid_request" {
			test.Fatalf("%s: expected invalid_request, got %d %s", testCase.name, recorder.Code, recorder.Body.String())
		}
	}
}

func TestAvailabilityCachedAndInvalidated(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	fixture.seedCourse(test, "course-1", 3)

	first := fixture.do(test, http.MethodGet, "/api/courses/course-1/availability", nil)
	if first.Code != http.StatusOK || decode(test, first)["spotsRemaining"] != float64(3) {
		test.Fatalf("unexpected availability %d %s", first.Code, first.Body.String())
	}
	if !fixture.cache.has(courseCacheKey("course-1")) {
		test.Fatalf("expected availability to be cached")
	}
	list := fixture.do(test, http.MethodGet, "/api/courses", nil)
	if list.Code != http.StatusOK || !fixture.cache.has(cacheKeyCourseList) {
		test.Fatalf("expected cached course list, got %d", list.Code)
	}

	if recorder := fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("ada@example.com", "course-1")); recorder.Code != http.StatusCreated {
		test.Fatalf("reserve failed: %d %s", recorder.Code, recorder.Body.String())
	}
	if fixture.cache.has(courseCacheKey("course-1")) || fixture.cache.has(cacheKeyCourseList) {
		test.Fatalf("expected cache invalidation after reserve")
	}
	second := fixture.do(test, http.MethodGet, "/api/courses/course-1/availability", nil)
	if decode(test, second)["spotsRemaining"] != float64(2) {
		test.Fatalf("expected fresh availability, got %s", second.Body.String())
	}
}

func TestAvailabilityUnknownCourse(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	recorder := fixture.do(test, http.MethodGet, "/api/courses/missing/availability", nil)
	if recorder.Code != http.StatusNotFound || errorCodeOf(test, recorder) != "course_not_found" {
		test.Fatalf("expected 404 course_not_found, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestListCoursesRejectsBadQuery(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	for _, path := range []string{"/api/courses?from=yesterday", "/api/courses?limit=-3"} {
		if recorder := fixture.do(test, http.MethodGet, path, nil); recorder.Code != http.StatusBadRequest {
			test.Fatalf("%s: expected 400, got %d", path, recorder.Code)
		}
	}
}

func TestTransferEmailMismatch(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	fixture.seedCourse(test, "course-1", 2)
	fixture.seedCourse(test, "course-2", 2)
	recorder := fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("ada@example.com", "course-1"))
	bookingID, _ := decode(test, recorder)["bookingId"].(string)

	mismatch := fixture.do(test, http.MethodPost, "/api/bookings/"+bookingID+"/transfer", transferRequest{NewCourseID: "course-2", Email: "mallory@example.com"})
	if mismatch.Code != http.StatusUnprocessableEntity || errorCodeOf(test, mismatch) != "email_mismatch" {
		test.Fatalf("expected email_mismatch, got %d %s", mismatch.Code, mismatch.Body.String())
	}
	moved := fixture.do(test, http.MethodPost, "/api/bookings/"+bookingID+"/transfer", transferRequest{NewCourseID: "course-2", Email: "ada@example.com"})
	if moved.Code != http.StatusOK || decode(test, moved)["newCourseId"] != "course-2" {
		test.Fatalf("unexpected transfer %d %s", moved.Code, moved.Body.String())
	}
}

func TestPassEndpoints(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	email, err := booking.NewEmail("ada@example.com")
	if err != nil {
		test.Fatalf("email: %v", err)
	}
	if _, err := fixture.service.CreatePass(context.Background(), booking.CreatePassRequest{
		Customer: booking.Customer{Email: email},
		Type:     booking.PassTypeFixedCount,
	}); err != nil {
		test.Fatalf("create pass: %v", err)
	}

	report := fixture.do(test, http.MethodGet, "/api/passes?email=ada@example.com", nil)
	body := decode(test, report)
	if report.Code != http.StatusOK || body["hasActivePass"] != true {
		test.Fatalf("unexpected pass report %d %s", report.Code, report.Body.String())
	}
	history := fixture.do(test, http.MethodGet, "/api/passes/history?email=ada@example.com", nil)
	passes, _ := decode(test, history)["passes"].([]any)
	if history.Code != http.StatusOK || len(passes) != 1 {
		test.Fatalf("unexpected history %d %s", history.Code, history.Body.String())
	}
	if recorder := fixture.do(test, http.MethodGet, "/api/passes?email=", nil); recorder.Code != http.StatusBadRequest {
		test.Fatalf("expected 400 for missing email, got %d", recorder.Code)
	}
}

func TestRemoveFromWaitlistEndpoint(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{})
	fixture.seedCourse(test, "course-1", 1)
	fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("ada@example.com", "course-1"))
	waitlisted := decode(test, fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("grace@example.com", "course-1")))
	entryID, _ := waitlisted["waitlistEntryId"].(string)

	if recorder := fixture.do(test, http.MethodDelete, "/api/waitlist/"+entryID+"?email=ada@example.com", nil); recorder.Code != http.StatusUnprocessableEntity {
		test.Fatalf("expected mismatch, got %d", recorder.Code)
	}
	if recorder := fixture.do(test, http.MethodDelete, "/api/waitlist/"+entryID+"?email=grace@example.com", nil); recorder.Code != http.StatusNoContent {
		test.Fatalf("expected 204, got %d %s", recorder.Code, recorder.Body.String())
	}
	if recorder := fixture.do(test, http.MethodDelete, "/api/waitlist/"+entryID+"?email=grace@example.com", nil); recorder.Code != http.StatusConflict {
		test.Fatalf("expected already processed conflict, got %d", recorder.Code)
	}
}

func TestReserveRateLimited(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, Config{ReserveRatePerMinute: 1, ReserveBurst: 1})
	fixture.seedCourse(test, "course-1", 5)
	if recorder := fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("a@example.com", "course-1")); recorder.Code != http.StatusCreated {
		test.Fatalf("expected 201, got %d", recorder.Code)
	}
	limited := fixture.do(test, http.MethodPost, "/api/bookings", cashBooking("b@example.com", "course-1"))
	if limited.Code != http.StatusTooManyRequests || errorCodeOf(test, limited) != "rate_limited" {
		test.Fatalf("expected 429, got %d", limited.Code)
	}
}

func TestStripeWebhookEndpoint(test *testing.T) {
	test.Parallel()
	disabled := newFixture(test, Config{})
	if recorder := disabled.do(test, http.MethodPost, "/api/webhooks/stripe", map[string]string{}); recorder.Code != http.StatusServiceUnavailable {
		test.Fatalf("expected 503 without processor, got %d", recorder.Code)
	}

	rejecting := newFixture(test, Config{}, WithWebhookProcessor(&stubWebhooks{err: payments.ErrInvalidSignature}))
	recorder := rejecting.do(test, http.MethodPost, "/api/webhooks/stripe", map[string]string{})
	if recorder.Code != http.StatusBadRequest || errorCodeOf(test, recorder) != "invalid_signature" {
		test.Fatalf("expected 400 invalid_signature, got %d %s", recorder.Code, recorder.Body.String())
	}

	accepting := newFixture(test, Config{}, WithWebhookProcessor(&stubWebhooks{outcome: payments.WebhookOutcome{Handled: true, CourseID: "course-1", Detail: "confirmed"}}))
	accepting.cache.entries[courseCacheKey("course-1")] = []byte(`{}`)
	recorder = accepting.do(test, http.MethodPost, "/api/webhooks/stripe", map[string]string{})
	if recorder.Code != http.StatusOK || decode(test, recorder)["handled"] != true {
		test.Fatalf("unexpected webhook response %d %s", recorder.Code, recorder.Body.String())
	}
	if accepting.cache.has(courseCacheKey("course-1")) {
		test.Fatalf("expected webhook to invalidate course cache")
	}
}

func TestStatusForError(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		err      error
		expected int
	}{
		{err: booking.ErrBookingNotFound, expected: http.StatusNotFound},
		{err: booking.ErrCourseFull, expected: http.StatusConflict},
		{err: booking.ErrPaymentMismatch, expected: http.StatusUnprocessableEntity},
		{err: booking.ErrInvalidEmail, expected: http.StatusBadRequest},
		{err: booking.ErrPaymentUnavailable, expected: http.StatusServiceUnavailable},
		{err: errors.New("boom"), expected: http.StatusInternalServerError},
	}
	for _, testCase := range testCases {
		if actual := statusForError(testCase.err); actual != testCase.expected {
			test.Fatalf("%v: expected %d, got %d", testCase.err, testCase.expected, actual)
		}
	}
}

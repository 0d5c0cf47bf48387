package booking

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

type memoryState struct {
	courses       map[string]Course
	bookings      map[string]Booking
	entries       map[string]WaitlistEntry
	passes        map[string]Pass
	notifications []Notification
	sheetRows     []SheetRow
}

func (state memoryState) clone() memoryState {
	cloned := memoryState{
		courses:       make(map[string]Course, len(state.courses)),
		bookings:      make(map[string]Booking, len(state.bookings)),
		entries:       make(map[string]WaitlistEntry, len(state.entries)),
		passes:        make(map[string]Pass, len(state.passes)),
		notifications: append([]Notification(nil), state.notifications...),
		sheetRows:     append([]SheetRow(nil), state.sheetRows...),
	}
	for id, course := range state.courses {
		cloned.courses[id] = course
	}
	for id, booking := range state.bookings {
		cloned.bookings[id] = booking
	}
	for id, entry := range state.entries {
		cloned.entries[id] = entry
	}
	for id, pass := range state.passes {
		cloned.passes[id] = clonePass(pass)
	}
	return cloned
}

func clonePass(pass Pass) Pass {
	pass.SessionsHistory = append([]SessionUse(nil), pass.SessionsHistory...)
	return pass
}

// stubStore keeps everything in memory. WithTx serializes transactions and
// restores the previous state when fn fails.
type stubStore struct {
	transactionMutex  sync.Mutex
	dataMutex         sync.Mutex
	state             memoryState
	failCreateBooking error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{state: memoryState{}.clone()}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.transactionMutex.Lock()
	defer store.transactionMutex.Unlock()
	store.dataMutex.Lock()
	snapshot := store.state.clone()
	store.dataMutex.Unlock()
	if err := fn(ctx, store); err != nil {
		store.dataMutex.Lock()
		store.state = snapshot
		store.dataMutex.Unlock()
		return err
	}
	return nil
}

func (store *stubStore) GetCourse(_ context.Context, courseID string) (Course, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	course, ok := store.state.courses[courseID]
	if !ok {
		return Course{}, ErrCourseNotFound
	}
	return course, nil
}

func (store *stubStore) ListCourses(_ context.Context, from time.Time, limit int) ([]Course, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	courses := make([]Course, 0, len(store.state.courses))
	for _, course := range store.state.courses {
		if !course.StartTime.Before(from) {
			courses = append(courses, course)
		}
	}
	sort.Slice(courses, func(left, right int) bool {
		return courses[left].StartTime.Before(courses[right].StartTime)
	})
	if len(courses) > limit {
		courses = courses[:limit]
	}
	return courses, nil
}

func (store *stubStore) UpsertCourse(_ context.Context, course Course) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.state.courses[course.ID] = course
	return nil
}

func (store *stubStore) UpdateCourseParticipantCount(_ context.Context, courseID string, participantCount int) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	course, ok := store.state.courses[courseID]
	if !ok {
		return ErrCourseNotFound
	}
	course.ParticipantCount = participantCount
	store.state.courses[courseID] = course
	return nil
}

func (store *stubStore) CreateBooking(_ context.Context, booking Booking) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if store.failCreateBooking != nil {
		return store.failCreateBooking
	}
	if _, exists := store.state.bookings[booking.ID]; exists {
		return ErrStoreConflict
	}
	store.state.bookings[booking.ID] = booking
	return nil
}

func (store *stubStore) GetBooking(_ context.Context, bookingID string) (Booking, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	booking, ok := store.state.bookings[bookingID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return booking, nil
}

func (store *stubStore) UpdateBooking(_ context.Context, booking Booking) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if _, ok := store.state.bookings[booking.ID]; !ok {
		return ErrBookingNotFound
	}
	store.state.bookings[booking.ID] = booking
	return nil
}

func (store *stubStore) FindActiveBooking(_ context.Context, courseID string, email Email) (Booking, bool, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, booking := range store.state.bookings {
		if booking.CourseID == courseID && booking.Customer.Email == email && booking.Status.IsActive() {
			return booking, true, nil
		}
	}
	return Booking{}, false, nil
}

func (store *stubStore) FindBookingByPaymentReference(_ context.Context, reference string) (Booking, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, booking := range store.state.bookings {
		if booking.ExternalPaymentReference == reference {
			return booking, nil
		}
	}
	return Booking{}, ErrBookingNotFound
}

func (store *stubStore) CountBookings(_ context.Context, courseID string, statuses []BookingStatus) (int, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	count := 0
	for _, booking := range store.state.bookings {
		if booking.CourseID != courseID {
			continue
		}
		for _, status := range statuses {
			if booking.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (store *stubStore) ListBookingsByEmail(_ context.Context, email Email, limit int) ([]Booking, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	bookings := make([]Booking, 0)
	for _, booking := range store.state.bookings {
		if booking.Customer.Email == email {
			bookings = append(bookings, booking)
		}
	}
	sort.Slice(bookings, func(left, right int) bool {
		return bookings[left].CreatedAt.After(bookings[right].CreatedAt)
	})
	if len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

func (store *stubStore) CreateWaitlistEntry(_ context.Context, entry WaitlistEntry) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.state.entries[entry.ID] = entry
	return nil
}

func (store *stubStore) GetWaitlistEntry(_ context.Context, entryID string) (WaitlistEntry, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	entry, ok := store.state.entries[entryID]
	if !ok {
		return WaitlistEntry{}, ErrWaitlistEntryNotFound
	}
	return entry, nil
}

func (store *stubStore) UpdateWaitlistEntry(_ context.Context, entry WaitlistEntry) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if _, ok := store.state.entries[entry.ID]; !ok {
		return ErrWaitlistEntryNotFound
	}
	store.state.entries[entry.ID] = entry
	return nil
}

func (store *stubStore) ListWaitlistEntries(_ context.Context, courseID string, statuses []WaitlistStatus) ([]WaitlistEntry, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	waiting := make([]WaitlistEntry, 0)
	for _, entry := range store.state.entries {
		if entry.CourseID == courseID && slices.Contains(statuses, entry.Status) {
			waiting = append(waiting, entry)
		}
	}
	sort.Slice(waiting, func(left, right int) bool {
		if !waiting[left].CreatedAt.Equal(waiting[right].CreatedAt) {
			return waiting[left].CreatedAt.Before(waiting[right].CreatedAt)
		}
		return waiting[left].ID < waiting[right].ID
	})
	return waiting, nil
}

func (store *stubStore) CreatePass(_ context.Context, pass Pass) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.state.passes[pass.ID] = clonePass(pass)
	return nil
}

func (store *stubStore) GetPass(_ context.Context, passID string) (Pass, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	pass, ok := store.state.passes[passID]
	if !ok {
		return Pass{}, ErrPassNotFound
	}
	return clonePass(pass), nil
}

func (store *stubStore) UpdatePass(_ context.Context, pass Pass) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if _, ok := store.state.passes[pass.ID]; !ok {
		return ErrPassNotFound
	}
	store.state.passes[pass.ID] = clonePass(pass)
	return nil
}

func (store *stubStore) ListPassesByEmail(_ context.Context, email Email) ([]Pass, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	passes := make([]Pass, 0)
	for _, pass := range store.state.passes {
		if pass.Customer.Email == email {
			passes = append(passes, clonePass(pass))
		}
	}
	sort.Slice(passes, func(left, right int) bool {
		return passes[left].PurchaseDate.After(passes[right].PurchaseDate)
	})
	return passes, nil
}

func (store *stubStore) FindPassBySubscriptionReference(_ context.Context, reference string) (Pass, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, pass := range store.state.passes {
		if pass.ExternalSubscriptionReference == reference {
			return clonePass(pass), nil
		}
	}
	return Pass{}, ErrPassNotFound
}

func (store *stubStore) EnqueueNotification(_ context.Context, notification Notification) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.state.notifications = append(store.state.notifications, notification)
	return nil
}

func (store *stubStore) EnqueueSheetRow(_ context.Context, row SheetRow) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.state.sheetRows = append(store.state.sheetRows, row)
	return nil
}

func (store *stubStore) mustBooking(test *testing.T, bookingID string) Booking {
	test.Helper()
	booking, err := store.GetBooking(context.Background(), bookingID)
	if err != nil {
		test.Fatalf("booking %s: %v", bookingID, err)
	}
	return booking
}

func (store *stubStore) mustCourse(test *testing.T, courseID string) Course {
	test.Helper()
	course, err := store.GetCourse(context.Background(), courseID)
	if err != nil {
		test.Fatalf("course %s: %v", courseID, err)
	}
	return course
}

func (store *stubStore) mustPass(test *testing.T, passID string) Pass {
	test.Helper()
	pass, err := store.GetPass(context.Background(), passID)
	if err != nil {
		test.Fatalf("pass %s: %v", passID, err)
	}
	return pass
}

func (store *stubStore) templates() []string {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	names := make([]string, 0, len(store.state.notifications))
	for _, notification := range store.state.notifications {
		names = append(names, notification.Template)
	}
	return names
}

func (store *stubStore) bookingCount() int {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	return len(store.state.bookings)
}

// failingStore fails every transaction with err.
type failingStore struct {
	*stubStore
	err error
}

func newFailingStore(test *testing.T, err error) *failingStore {
	test.Helper()
	return &failingStore{stubStore: newStubStore(test), err: err}
}

func (store *failingStore) WithTx(context.Context, func(context.Context, Store) error) error {
	return store.err
}

var errStubGateway = errors.New("gateway down")

type stubGateway struct {
	mutex     sync.Mutex
	requests  []PaymentIntentRequest
	err       error
	reference string
}

func (gateway *stubGateway) CreatePaymentIntent(_ context.Context, request PaymentIntentRequest) (PaymentIntent, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.requests = append(gateway.requests, request)
	if gateway.err != nil {
		return PaymentIntent{}, gateway.err
	}
	reference := gateway.reference
	if reference == "" {
		reference = "pi_" + request.BookingID
	}
	return PaymentIntent{Reference: reference, ClientSecret: reference + "_secret"}, nil
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

var testEpoch = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// steppingClock advances one second per reading so creation order is strict.
func steppingClock(start time.Time) func() time.Time {
	var mutex sync.Mutex
	current := start
	return func() time.Time {
		mutex.Lock()
		defer mutex.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	counter := 0
	var mutex sync.Mutex
	idGenerator := func() string {
		mutex.Lock()
		defer mutex.Unlock()
		counter++
		return "id-" + strconv.Itoa(counter)
	}
	allOptions := append([]ServiceOption{WithIDGenerator(idGenerator)}, options...)
	service, err := NewService(store, steppingClock(testEpoch), allOptions...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustEmail(test *testing.T, raw string) Email {
	test.Helper()
	email, err := NewEmail(raw)
	if err != nil {
		test.Fatalf("email %q: %v", raw, err)
	}
	return email
}

func mustCustomer(test *testing.T, raw string) Customer {
	test.Helper()
	return Customer{Email: mustEmail(test, raw), FirstName: "Ada", LastName: "Lovelace", Phone: "+41 79 000 00 00"}
}

func seedCourse(test *testing.T, store *stubStore, courseID string, capacity int) Course {
	test.Helper()
	course := Course{
		ID:          courseID,
		Title:       "Vinyasa " + courseID,
		Location:    "Studio A",
		StartTime:   testEpoch.Add(48 * time.Hour),
		EndTime:     testEpoch.Add(49 * time.Hour),
		MaxCapacity: capacity,
		PriceCents:  2500,
		Status:      CourseStatusActive,
	}
	if err := store.UpsertCourse(context.Background(), course); err != nil {
		test.Fatalf("seed course: %v", err)
	}
	return course
}

func seedPass(test *testing.T, store *stubStore, passID string, email Email, passType PassType, sessions int) Pass {
	test.Helper()
	remaining := sessions
	if passType == PassTypeUnlimited {
		remaining = UnlimitedSessions
	}
	pass := Pass{
		ID:                passID,
		Customer:          Customer{Email: email},
		Type:              passType,
		SessionsTotal:     remaining,
		SessionsRemaining: remaining,
		PurchaseDate:      testEpoch,
		ExpiryDate:        testEpoch.Add(365 * day),
		Status:            PassStatusActive,
	}
	if err := store.CreatePass(context.Background(), pass); err != nil {
		test.Fatalf("seed pass: %v", err)
	}
	return pass
}

func reserveCash(test *testing.T, service *Service, courseID string, email string) ReserveResult {
	test.Helper()
	result, err := service.Reserve(context.Background(), ReserveRequest{
		CourseID:      courseID,
		Customer:      mustCustomer(test, email),
		PaymentMethod: PaymentMethodCash,
		PricingOption: PricingSingle,
	})
	if err != nil {
		test.Fatalf("reserve %s for %s: %v", courseID, email, err)
	}
	return result
}

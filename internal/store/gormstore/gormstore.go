package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintActiveCustomer   = "idx_bookings_active_customer"
	sqliteActiveCustomerColumn = "bookings.course_id"
	pgUniqueViolationCode      = "23505"
	pgSerializationFailure     = "40001"
	pgDeadlockDetected         = "40P01"
	sqliteConstraintCode       = 19
	sqliteBusyCode             = 5
	sqliteLockedCode           = 6
	defaultMaxAttempts         = 5
	defaultRetryBackoff        = 20 * time.Millisecond
	lockStrengthUpdate         = "UPDATE"

	errorOperationStore       = "store"
	errorSubjectBooking       = "booking"
	errorSubjectCourse        = "course"
	errorSubjectOutbox        = "outbox"
	errorSubjectPass          = "pass"
	errorSubjectTransaction   = "transaction"
	errorSubjectWaitlist      = "waitlist"
	errorCodeCount            = "count"
	errorCodeCreate           = "create"
	errorCodeDuplicate        = "duplicate"
	errorCodeEncode           = "encode"
	errorCodeGet              = "get"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeLookup           = "lookup"
	errorCodeRetriesExhausted = "retries_exhausted"
	errorCodeUpdate           = "update"
	errorCodeUpsert           = "upsert"
)

// Store implements booking.Store using GORM.
type Store struct {
	db            *gorm.DB
	nowFn         func() time.Time
	maxAttempts   int
	retryBackoff  time.Duration
	inTransaction bool
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds how often a transaction is replayed after a
// serialization failure, deadlock or busy database.
func WithMaxAttempts(maxAttempts int) Option {
	return func(store *Store) {
		if maxAttempts > 0 {
			store.maxAttempts = maxAttempts
		}
	}
}

// WithClock replaces the clock used for outbox timestamps.
func WithClock(now func() time.Time) Option {
	return func(store *Store) {
		if now != nil {
			store.nowFn = now
		}
	}
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{
		db:           db,
		nowFn:        time.Now,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// AutoMigrate creates or updates every table used by the store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// Ping checks the underlying connection.
func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTx executes fn within a transaction and replays it when the database
// reports a transient conflict.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	if store.inTransaction {
		return fn(ctx, store)
	}
	var lastErr error
	for attempt := 1; attempt <= store.maxAttempts; attempt++ {
		lastErr = store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
			return fn(ctx, store.bound(transaction))
		})
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * store.retryBackoff):
		}
	}
	return wrapStoreError(errorSubjectTransaction, errorCodeRetriesExhausted, fmt.Errorf("%w: %v", booking.ErrStoreUnavailable, lastErr))
}

func (store *Store) bound(transaction *gorm.DB) *Store {
	return &Store{
		db:            transaction,
		nowFn:         store.nowFn,
		maxAttempts:   store.maxAttempts,
		retryBackoff:  store.retryBackoff,
		inTransaction: true,
	}
}

// locked adds FOR UPDATE when running inside a transaction.
func (store *Store) locked(ctx context.Context) *gorm.DB {
	query := store.db.WithContext(ctx)
	if store.inTransaction {
		query = query.Clauses(clause.Locking{Strength: lockStrengthUpdate})
	}
	return query
}

func (store *Store) GetCourse(ctx context.Context, courseID string) (booking.Course, error) {
	var model Course
	err := store.locked(ctx).Where("course_id = ?", courseID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Course{}, wrapStoreError(errorSubjectCourse, errorCodeGet, booking.ErrCourseNotFound)
		}
		return booking.Course{}, wrapStoreError(errorSubjectCourse, errorCodeGet, err)
	}
	course, err := mapCourse(model)
	if err != nil {
		return booking.Course{}, wrapStoreError(errorSubjectCourse, errorCodeInvalid, err)
	}
	return course, nil
}

func (store *Store) ListCourses(ctx context.Context, from time.Time, limit int) ([]booking.Course, error) {
	var rows []Course
	err := store.db.WithContext(ctx).
		Where("start_time >= ?", from.UTC()).
		Order("start_time ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCourse, errorCodeList, err)
	}
	courses := make([]booking.Course, 0, len(rows))
	for _, row := range rows {
		course, err := mapCourse(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCourse, errorCodeInvalid, err)
		}
		courses = append(courses, course)
	}
	return courses, nil
}

func (store *Store) UpsertCourse(ctx context.Context, course booking.Course) error {
	model := Course{
		CourseID:         course.ID,
		Title:            course.Title,
		Description:      course.Description,
		Location:         course.Location,
		StartTime:        course.StartTime.UTC(),
		EndTime:          course.EndTime.UTC(),
		MaxCapacity:      course.MaxCapacity,
		ParticipantCount: course.ParticipantCount,
		PriceCents:       course.PriceCents.Int64(),
		Status:           string(course.Status),
		UpdatedAt:        course.UpdatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "course_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "location", "start_time", "end_time",
				"max_capacity", "price_cents", "status", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectCourse, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) UpdateCourseParticipantCount(ctx context.Context, courseID string, participantCount int) error {
	result := store.db.WithContext(ctx).
		Model(&Course{}).
		Where("course_id = ?", courseID).
		Update("participant_count", participantCount)
	if result.Error != nil {
		return wrapStoreError(errorSubjectCourse, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCourse, errorCodeUpdate, booking.ErrCourseNotFound)
	}
	return nil
}

func (store *Store) CreateBooking(ctx context.Context, record booking.Booking) error {
	model := bookingModel(record)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isActiveCustomerConflict(err) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrAlreadyBooked)
	}
	if isUniqueConflict(err) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrStoreConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID string) (booking.Booking, error) {
	return store.takeBooking(store.locked(ctx).Where("booking_id = ?", bookingID))
}

func (store *Store) FindBookingByPaymentReference(ctx context.Context, reference string) (booking.Booking, error) {
	return store.takeBooking(store.locked(ctx).Where("external_payment_reference = ?", reference))
}

func (store *Store) takeBooking(query *gorm.DB) (booking.Booking, error) {
	var model Booking
	if err := query.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrBookingNotFound)
		}
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	record, err := mapBooking(model)
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return record, nil
}

func (store *Store) UpdateBooking(ctx context.Context, record booking.Booking) error {
	model := bookingModel(record)
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("booking_id = ?", model.BookingID).
		Select("*").
		Omit("booking_id", "created_at").
		Updates(&model)
	if isActiveCustomerConflict(result.Error) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrAlreadyBooked)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, booking.ErrBookingNotFound)
	}
	return nil
}

func (store *Store) FindActiveBooking(ctx context.Context, courseID string, email booking.Email) (booking.Booking, bool, error) {
	var model Booking
	err := store.db.WithContext(ctx).
		Where("course_id = ? AND email = ? AND status IN ?", courseID, email.String(), []string{
			booking.BookingStatusPending.String(),
			booking.BookingStatusConfirmed.String(),
			booking.BookingStatusConfirmedCashPending.String(),
		}).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Booking{}, false, nil
		}
		return booking.Booking{}, false, wrapStoreError(errorSubjectBooking, errorCodeLookup, err)
	}
	record, err := mapBooking(model)
	if err != nil {
		return booking.Booking{}, false, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return record, true, nil
}

func (store *Store) CountBookings(ctx context.Context, courseID string, statuses []booking.BookingStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, status.String())
	}
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("course_id = ? AND status IN ?", courseID, values).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) ListBookingsByEmail(ctx context.Context, email booking.Email, limit int) ([]booking.Booking, error) {
	var rows []Booking
	err := store.db.WithContext(ctx).
		Where("email = ?", email.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	records := make([]booking.Booking, 0, len(rows))
	for _, row := range rows {
		record, err := mapBooking(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (store *Store) CreateWaitlistEntry(ctx context.Context, entry booking.WaitlistEntry) error {
	model := waitlistModel(entry)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueConflict(err) {
		return wrapStoreError(errorSubjectWaitlist, errorCodeDuplicate, booking.ErrStoreConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetWaitlistEntry(ctx context.Context, entryID string) (booking.WaitlistEntry, error) {
	var model WaitlistEntry
	err := store.locked(ctx).Where("entry_id = ?", entryID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeGet, booking.ErrWaitlistEntryNotFound)
		}
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeGet, err)
	}
	entry, err := mapWaitlistEntry(model)
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) UpdateWaitlistEntry(ctx context.Context, entry booking.WaitlistEntry) error {
	model := waitlistModel(entry)
	result := store.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("entry_id = ?", model.EntryID).
		Select("*").
		Omit("entry_id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, booking.ErrWaitlistEntryNotFound)
	}
	return nil
}

func (store *Store) ListWaitlistEntries(ctx context.Context, courseID string, statuses []booking.WaitlistStatus) ([]booking.WaitlistEntry, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	var rows []WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("course_id = ? AND status IN ?", courseID, values).
		Order("created_at ASC, entry_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWaitlist, errorCodeList, err)
	}
	entries := make([]booking.WaitlistEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapWaitlistEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) CreatePass(ctx context.Context, pass booking.Pass) error {
	model, err := passModel(pass)
	if err != nil {
		return wrapStoreError(errorSubjectPass, errorCodeEncode, err)
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueConflict(err) {
		return wrapStoreError(errorSubjectPass, errorCodeDuplicate, booking.ErrStoreConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPass, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPass(ctx context.Context, passID string) (booking.Pass, error) {
	return store.takePass(store.locked(ctx).Where("pass_id = ?", passID))
}

func (store *Store) FindPassBySubscriptionReference(ctx context.Context, reference string) (booking.Pass, error) {
	return store.takePass(store.locked(ctx).Where("external_subscription_reference = ?", reference))
}

func (store *Store) takePass(query *gorm.DB) (booking.Pass, error) {
	var model Pass
	if err := query.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Pass{}, wrapStoreError(errorSubjectPass, errorCodeGet, booking.ErrPassNotFound)
		}
		return booking.Pass{}, wrapStoreError(errorSubjectPass, errorCodeGet, err)
	}
	pass, err := mapPass(model)
	if err != nil {
		return booking.Pass{}, wrapStoreError(errorSubjectPass, errorCodeInvalid, err)
	}
	return pass, nil
}

func (store *Store) UpdatePass(ctx context.Context, pass booking.Pass) error {
	model, err := passModel(pass)
	if err != nil {
		return wrapStoreError(errorSubjectPass, errorCodeEncode, err)
	}
	result := store.db.WithContext(ctx).
		Model(&Pass{}).
		Where("pass_id = ?", model.PassID).
		Select("*").
		Omit("pass_id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return wrapStoreError(errorSubjectPass, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPass, errorCodeUpdate, booking.ErrPassNotFound)
	}
	return nil
}

func (store *Store) ListPassesByEmail(ctx context.Context, email booking.Email) ([]booking.Pass, error) {
	var rows []Pass
	err := store.db.WithContext(ctx).
		Where("email = ?", email.String()).
		Order("purchase_date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPass, errorCodeList, err)
	}
	passes := make([]booking.Pass, 0, len(rows))
	for _, row := range rows {
		pass, err := mapPass(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPass, errorCodeInvalid, err)
		}
		passes = append(passes, pass)
	}
	return passes, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func isActiveCustomerConflict(err error) bool {
	if !isUniqueConflict(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName == constraintActiveCustomer
	}
	return strings.Contains(err.Error(), sqliteActiveCustomerColumn)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}

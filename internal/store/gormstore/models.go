package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course mirrors the courses table. Rows are written by calendar sync; the
// booking service only touches participant_count.
type Course struct {
	CourseID         string    `gorm:"primaryKey"`
	Title            string    `gorm:"not null"`
	Description      string    `gorm:"not null;default:''"`
	Location         string    `gorm:"not null;default:''"`
	StartTime        time.Time `gorm:"not null;index:idx_courses_start"`
	EndTime          time.Time `gorm:"not null"`
	MaxCapacity      int       `gorm:"not null"`
	ParticipantCount int       `gorm:"not null;default:0"`
	PriceCents       int64     `gorm:"not null;default:0"`
	Status           string    `gorm:"not null;default:'active'"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Course) TableName() string { return "courses" }

// Booking mirrors the bookings table. The partial unique index enforces one
// active booking per customer and course.
type Booking struct {
	BookingID                string     `gorm:"primaryKey"`
	CourseID                 string     `gorm:"not null;index:idx_bookings_course_status,priority:1;index:idx_bookings_active_customer,unique,priority:1,where:status <> 'cancelled' AND status <> 'completed'"`
	Email                    string     `gorm:"not null;index:idx_bookings_email;index:idx_bookings_active_customer,unique,priority:2,where:status <> 'cancelled' AND status <> 'completed'"`
	FirstName                string     `gorm:"not null;default:''"`
	LastName                 string     `gorm:"not null;default:''"`
	Phone                    string     `gorm:"not null;default:''"`
	PaymentMethod            string     `gorm:"not null"`
	PricingOption            string     `gorm:"not null"`
	AmountCents              int64      `gorm:"not null"`
	Currency                 string     `gorm:"not null"`
	Status                   string     `gorm:"not null;index:idx_bookings_course_status,priority:2"`
	ExternalPaymentReference *string    `gorm:"uniqueIndex:idx_bookings_payment_reference"`
	PassReference            *string    `gorm:"index:idx_bookings_pass"`
	TransferredFrom          *string    `gorm:""`
	TransferredTo            *string    `gorm:""`
	CancellationReason       string     `gorm:"not null;default:''"`
	CreatedAt                time.Time  `gorm:"not null"`
	UpdatedAt                time.Time  `gorm:"not null;autoUpdateTime:false"`
	PaidAt                   *time.Time `gorm:""`
	CancelledAt              *time.Time `gorm:""`
}

func (Booking) TableName() string { return "bookings" }

func (booking *Booking) BeforeCreate(tx *gorm.DB) error {
	if booking.BookingID == "" {
		booking.BookingID = uuid.NewString()
	}
	return nil
}

// WaitlistEntry mirrors the waitlist_entries table.
type WaitlistEntry struct {
	EntryID    string     `gorm:"primaryKey"`
	CourseID   string     `gorm:"not null;index:idx_waitlist_course_status_created,priority:1"`
	Email      string     `gorm:"not null;index:idx_waitlist_email"`
	FirstName  string     `gorm:"not null;default:''"`
	LastName   string     `gorm:"not null;default:''"`
	Phone      string     `gorm:"not null;default:''"`
	Status     string     `gorm:"not null;index:idx_waitlist_course_status_created,priority:2"`
	CreatedAt  time.Time  `gorm:"not null;index:idx_waitlist_course_status_created,priority:3"`
	NotifiedAt *time.Time `gorm:""`
	RemovedAt  *time.Time `gorm:""`
}

func (WaitlistEntry) TableName() string { return "waitlist_entries" }

func (entry *WaitlistEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Pass mirrors the passes table. Session history is stored as a JSON array.
type Pass struct {
	PassID                        string         `gorm:"primaryKey"`
	Email                         string         `gorm:"not null;index:idx_passes_email"`
	FirstName                     string         `gorm:"not null;default:''"`
	LastName                      string         `gorm:"not null;default:''"`
	Phone                         string         `gorm:"not null;default:''"`
	Type                          string         `gorm:"not null"`
	SessionsTotal                 int            `gorm:"not null"`
	SessionsUsed                  int            `gorm:"not null;default:0"`
	SessionsRemaining             int            `gorm:"not null"`
	PurchaseDate                  time.Time      `gorm:"not null"`
	ExpiryDate                    time.Time      `gorm:"not null"`
	Status                        string         `gorm:"not null"`
	IsRecurring                   bool           `gorm:"not null;default:false"`
	PriceCents                    int64          `gorm:"not null;default:0"`
	Currency                      string         `gorm:"not null"`
	ExternalPaymentReference      *string        `gorm:""`
	ExternalSubscriptionReference *string        `gorm:"uniqueIndex:idx_passes_subscription_reference"`
	RenewalCount                  int            `gorm:"not null;default:0"`
	SessionsHistory               datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt                     time.Time      `gorm:"not null"`
	UpdatedAt                     time.Time      `gorm:"not null;autoUpdateTime:false"`
	CancelledAt                   *time.Time     `gorm:""`
}

func (Pass) TableName() string { return "passes" }

func (pass *Pass) BeforeCreate(tx *gorm.DB) error {
	if pass.PassID == "" {
		pass.PassID = uuid.NewString()
	}
	return nil
}

// OutboxMessage mirrors the outbox table drained by the dispatcher.
type OutboxMessage struct {
	MessageID   string         `gorm:"primaryKey"`
	Kind        string         `gorm:"not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Status      string         `gorm:"not null;index:idx_outbox_status_available,priority:1"`
	Attempts    int            `gorm:"not null;default:0"`
	LastError   string         `gorm:"not null;default:''"`
	AvailableAt time.Time      `gorm:"not null;index:idx_outbox_status_available,priority:2"`
	CreatedAt   time.Time      `gorm:"not null"`
	SentAt      *time.Time     `gorm:""`
}

func (OutboxMessage) TableName() string { return "outbox_messages" }

func (message *OutboxMessage) BeforeCreate(tx *gorm.DB) error {
	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Course{}, &Booking{}, &WaitlistEntry{}, &Pass{}, &OutboxMessage{}}
}

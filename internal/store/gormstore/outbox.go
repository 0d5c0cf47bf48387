package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outbox message statuses.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

const (
	lockOptionSkipLocked = "SKIP LOCKED"
	maxLastErrorLength   = 1000
)

type notificationPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

type sheetRowPayload struct {
	Values []string `json:"values"`
}

func (store *Store) EnqueueNotification(ctx context.Context, notification booking.Notification) error {
	return store.enqueue(ctx, booking.OutboxKindEmail, notificationPayload{
		To:       notification.To.String(),
		Template: notification.Template,
		Data:     notification.Data,
	})
}

func (store *Store) EnqueueSheetRow(ctx context.Context, row booking.SheetRow) error {
	return store.enqueue(ctx, booking.OutboxKindSheetRow, sheetRowPayload{Values: row.Values})
}

func (store *Store) enqueue(ctx context.Context, kind booking.OutboxKind, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeEncode, err)
	}
	now := store.nowFn().UTC()
	model := OutboxMessage{
		Kind:        string(kind),
		Payload:     datatypes.JSON(encoded),
		Status:      OutboxStatusPending,
		AvailableAt: now,
		CreatedAt:   now,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeCreate, err)
	}
	return nil
}

// ClaimOutbox leases up to limit due messages. A leased message becomes due
// again after lease unless it is marked sent or failed first.
func (store *Store) ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]booking.OutboxMessage, error) {
	now := store.nowFn().UTC()
	var claimed []booking.OutboxMessage
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		claimed = nil
		var rows []OutboxMessage
		err := transaction.
			Clauses(clause.Locking{Strength: lockStrengthUpdate, Options: lockOptionSkipLocked}).
			Where("status = ? AND available_at <= ?", OutboxStatusPending, now).
			Order("created_at ASC, message_id ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return err
		}
		for _, row := range rows {
			message, decodeErr := decodeOutboxMessage(row)
			if decodeErr != nil {
				if err := transaction.Model(&OutboxMessage{}).
					Where("message_id = ?", row.MessageID).
					Updates(map[string]any{"status": OutboxStatusFailed, "last_error": truncate(decodeErr.Error())}).Error; err != nil {
					return err
				}
				continue
			}
			if err := transaction.Model(&OutboxMessage{}).
				Where("message_id = ?", row.MessageID).
				Updates(map[string]any{"available_at": now.Add(lease), "attempts": gorm.Expr("attempts + 1")}).Error; err != nil {
				return err
			}
			message.Attempts = row.Attempts + 1
			claimed = append(claimed, message)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectOutbox, errorCodeList, err)
	}
	return claimed, nil
}

// MarkOutboxSent records a delivered message.
func (store *Store) MarkOutboxSent(ctx context.Context, messageID string) error {
	now := store.nowFn().UTC()
	return store.updateOutbox(ctx, messageID, map[string]any{
		"status":     OutboxStatusSent,
		"sent_at":    now,
		"last_error": "",
	})
}

// MarkOutboxFailed records a delivery failure. Terminal failures are never
// retried; others become due again at retryAt.
func (store *Store) MarkOutboxFailed(ctx context.Context, messageID string, cause error, retryAt time.Time, terminal bool) error {
	status := OutboxStatusPending
	if terminal {
		status = OutboxStatusFailed
	}
	lastError := ""
	if cause != nil {
		lastError = truncate(cause.Error())
	}
	return store.updateOutbox(ctx, messageID, map[string]any{
		"status":       status,
		"available_at": retryAt.UTC(),
		"last_error":   lastError,
	})
}

// CountOutbox reports how many messages are in status.
func (store *Store) CountOutbox(ctx context.Context, status string) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&OutboxMessage{}).Where("status = ?", status).Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectOutbox, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) updateOutbox(ctx context.Context, messageID string, values map[string]any) error {
	result := store.db.WithContext(ctx).Model(&OutboxMessage{}).Where("message_id = ?", messageID).Updates(values)
	if result.Error != nil {
		return wrapStoreError(errorSubjectOutbox, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectOutbox, errorCodeUpdate, fmt.Errorf("message %s not found", messageID))
	}
	return nil
}

func decodeOutboxMessage(row OutboxMessage) (booking.OutboxMessage, error) {
	message := booking.OutboxMessage{ID: row.MessageID, Kind: booking.OutboxKind(row.Kind), Attempts: row.Attempts}
	switch message.Kind {
	case booking.OutboxKindEmail:
		var payload notificationPayload
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return booking.OutboxMessage{}, fmt.Errorf("decode notification: %w", err)
		}
		email, err := booking.NewEmail(payload.To)
		if err != nil {
			return booking.OutboxMessage{}, err
		}
		message.Notification = &booking.Notification{To: email, Template: payload.Template, Data: payload.Data}
	case booking.OutboxKindSheetRow:
		var payload sheetRowPayload
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return booking.OutboxMessage{}, fmt.Errorf("decode sheet row: %w", err)
		}
		message.Row = &booking.SheetRow{Values: payload.Values}
	default:
		return booking.OutboxMessage{}, fmt.Errorf("unknown outbox kind %q", row.Kind)
	}
	return message, nil
}

func truncate(value string) string {
	if len(value) <= maxLastErrorLength {
		return value
	}
	return value[:maxLastErrorLength]
}

package events

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
)

// OutboxMessage is an event staged in the same transaction as the state it
// describes. Rows stay PENDING until a publish succeeds.
type OutboxMessage struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"uniqueIndex;size:64"`
	EventType Type      `gorm:"size:64;index"`
	Key       string    `gorm:"size:160"`
	Value     []byte    `gorm:"not null"`
	Status    string    `gorm:"size:16;not null"`
	Attempts  int       `gorm:"not null;default:0"`
	LastError string    `gorm:"size:1024"`
	CreatedAt time.Time
	UpdatedAt time.Time
	SentAt    *time.Time
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// Stage writes evts to the outbox using tx, which must be the transaction
// persisting the state the events describe.
func Stage(tx *gorm.DB, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	rows := make([]OutboxMessage, 0, len(evts))
	for _, e := range evts {
		value, err := e.Value()
		if err != nil {
			return err
		}
		rows = append(rows, OutboxMessage{
			EventID:   e.ID,
			EventType: e.Type,
			Key:       e.Key,
			Value:     value,
			Status:    OutboxStatusPending,
			CreatedAt: e.OccurredAt,
			UpdatedAt: e.OccurredAt,
		})
	}
	return tx.Create(&rows).Error
}

// OutboxStore reads and updates staged events.
type OutboxStore struct {
	db *gorm.DB
}

func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Pending returns up to limit PENDING rows created before the cutoff,
// oldest first.
func (s *OutboxStore) Pending(ctx context.Context, before time.Time, limit int) ([]OutboxMessage, error) {
	var rows []OutboxMessage
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", OutboxStatusPending, before).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *OutboxStore) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&OutboxMessage{}).
		Where("status = ?", OutboxStatusPending).
		Count(&n).Error
	return n, err
}

func (s *OutboxStore) MarkSent(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&OutboxMessage{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":     OutboxStatusSent,
			"sent_at":    now,
			"updated_at": now,
		}).Error
}

func (s *OutboxStore) MarkFailed(ctx context.Context, eventID string, cause error) error {
	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	return s.db.WithContext(ctx).Model(&OutboxMessage{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
			"updated_at": time.Now().UTC(),
		}).Error
}

// CleanupSent deletes SENT rows last updated before the cutoff.
func (s *OutboxStore) CleanupSent(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", OutboxStatusSent, before).
		Delete(&OutboxMessage{})
	return result.RowsAffected, result.Error
}

func (s *OutboxStore) Get(ctx context.Context, eventID string) (*OutboxMessage, error) {
	var row OutboxMessage
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type NotificationStatus string

const (
	NotificationPending           NotificationStatus = "pending"
	NotificationResolved          NotificationStatus = "resolved"
	NotificationPermanentlyFailed NotificationStatus = "permanently_failed"
)

// FailedNotification is a lifecycle event whose delivery failed and is
// waiting for a retry.
type FailedNotification struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	EventID      uuid.UUID          `json:"event_id" gorm:"type:uuid;not null;uniqueIndex"`
	EventType    string             `json:"event_type" gorm:"type:varchar(50);not null"`
	GymID        uuid.UUID          `json:"gym_id" gorm:"type:uuid;not null;index"`
	Payload      datatypes.JSON     `json:"payload" gorm:"type:jsonb;not null"`
	ErrorMessage string             `json:"error_message"`
	RetryCount   int                `json:"retry_count" gorm:"not null"`
	MaxRetries   int                `json:"max_retries" gorm:"not null"`
	Status       NotificationStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_failed_notifications_due,priority:1"`
	NextRetryAt  time.Time          `json:"next_retry_at" gorm:"not null;index:idx_failed_notifications_due,priority:2"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ResolvedAt   *time.Time         `json:"resolved_at,omitempty"`
}

// TableName returns the table name for the FailedNotification model
func (FailedNotification) TableName() string {
	return "failed_notifications"
}

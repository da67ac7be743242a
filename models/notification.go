package models

import (
	"errors"
	"time"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification – запись outbox, которую забирает локальный бот
type Notification struct {
	ID        string             `json:"id" db:"id"`
	Phone     string             `json:"phone" db:"phone"`
	Message   string             `json:"message" db:"message"`
	Status    NotificationStatus `json:"status" db:"status"`
	Error     *string            `json:"error,omitempty" db:"error"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

func (s NotificationStatus) Final() bool {
	return s == NotificationSent || s == NotificationFailed
}

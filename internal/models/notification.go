package models

import "time"

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// BudgetRequestNotification is written before every send attempt and
// updated with the outcome. RetryCount/MaxRetries/NextRetryAt are recorded
// but no retry loop reads them.
type BudgetRequestNotification struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	BudgetRequestID uint               `gorm:"index;not null" json:"budget_request_id"`
	Recipient       string             `gorm:"size:200;not null" json:"recipient"`
	Subject         string             `gorm:"size:255;not null" json:"subject"`
	Message         string             `gorm:"type:text" json:"message"`
	Channel         string             `gorm:"size:20;not null;default:'email'" json:"channel"`
	Type            string             `gorm:"size:50;not null" json:"type"`
	Status          NotificationStatus `gorm:"size:20;index;not null" json:"status"`
	Error           string             `gorm:"type:text" json:"error"`
	SentAt          *time.Time         `json:"sent_at"`
	RetryCount      int                `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries      int                `gorm:"not null;default:3" json:"max_retries"`
	NextRetryAt     *time.Time         `json:"next_retry_at"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

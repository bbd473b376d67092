package models

import "time"

type WebhookSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"size:100;index;not null" json:"event_type"`
	URL       string    `gorm:"size:500;not null" json:"url"`
	Secret    string    `gorm:"size:255" json:"-"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

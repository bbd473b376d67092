// Package webhook stores subscriptions and fans lifecycle events out to them.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"budget-backend/internal/models"

	"gorm.io/gorm"
)

const (
	EventSubmitted = "budget_request.submitted"
	EventApproved  = "budget_request.approved"
	EventRejected  = "budget_request.rejected"
)

var (
	ErrNotFound     = errors.New("webhook subscription not found")
	ErrInvalidEvent = errors.New("unknown webhook event type")
	ErrInvalidURL   = errors.New("webhook url must be absolute http(s)")
)

func ValidEvent(eventType string) bool {
	switch eventType {
	case EventSubmitted, EventApproved, EventRejected:
		return true
	}
	return false
}

type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) Create(ctx context.Context, eventType, rawURL, secret string) (*models.WebhookSubscription, error) {
	eventType = strings.TrimSpace(eventType)
	if !ValidEvent(eventType) {
		return nil, ErrInvalidEvent
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	sub := models.WebhookSubscription{
		EventType: eventType,
		URL:       u.String(),
		Secret:    secret,
		IsActive:  true,
	}
	if err := r.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("create webhook subscription: %w", err)
	}
	return &sub, nil
}

func (r *Registry) List(ctx context.Context) ([]models.WebhookSubscription, error) {
	var subs []models.WebhookSubscription
	err := r.db.WithContext(ctx).Order("id ASC").Find(&subs).Error
	return subs, err
}

// Active returns the live subscribers of eventType.
func (r *Registry) Active(ctx context.Context, eventType string) ([]models.WebhookSubscription, error) {
	var subs []models.WebhookSubscription
	err := r.db.WithContext(ctx).
		Where("event_type = ? AND is_active = ?", eventType, true).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *Registry) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.WebhookSubscription{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

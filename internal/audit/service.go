// Package audit records lifecycle events with the external audit service and
// keeps them in the local audit_logs table when that service cannot take them.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"budget-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LogOptions struct {
	UserID       uint
	UserName     string
	UserRole     models.UserRole
	ResourceType string
	ResourceID   uint
	Action       models.AuditAction
	Description  string
	Before       any
	After        any
}

// event is the external audit service's wire format.
type event struct {
	Service      string             `json:"service"`
	Action       models.AuditAction `json:"action"`
	UserID       uint               `json:"userId"`
	Username     string             `json:"username"`
	UserRole     models.UserRole    `json:"userRole"`
	ResourceType string             `json:"resourceType"`
	ResourceID   uint               `json:"resourceId"`
	Details      map[string]any     `json:"details"`
	Timestamp    time.Time          `json:"timestamp"`
}

type Client struct {
	url     string
	service string
	http    *http.Client
	db      *gorm.DB
	log     *zap.Logger
}

// NewClient returns a client posting to baseURL. An empty baseURL sends
// every event straight to the local table.
func NewClient(baseURL, service string, timeout time.Duration, db *gorm.DB, log *zap.Logger) *Client {
	return &Client{
		url:     strings.TrimRight(baseURL, "/"),
		service: service,
		http:    &http.Client{Timeout: timeout},
		db:      db,
		log:     log,
	}
}

// Record delivers one event. A failed delivery is kept locally and is not an
// error; only a failed local write is.
func (c *Client) Record(ctx context.Context, opts LogOptions) error {
	if c.url == "" {
		return c.WriteLog(ctx, opts, "")
	}

	err := c.post(ctx, opts)
	if err == nil {
		return nil
	}
	c.log.Warn("audit service delivery failed, keeping locally",
		zap.String("action", string(opts.Action)),
		zap.Uint("resource_id", opts.ResourceID),
		zap.Error(err),
	)
	return c.WriteLog(ctx, opts, err.Error())
}

func (c *Client) post(ctx context.Context, opts LogOptions) error {
	details := map[string]any{"description": opts.Description}
	if opts.Before != nil {
		details["before"] = opts.Before
	}
	if opts.After != nil {
		details["after"] = opts.After
	}
	body, err := json.Marshal(event{
		Service:      c.service,
		Action:       opts.Action,
		UserID:       opts.UserID,
		Username:     opts.UserName,
		UserRole:     opts.UserRole,
		ResourceType: opts.ResourceType,
		ResourceID:   opts.ResourceID,
		Details:      details,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v1/audit-logs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("audit service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// WriteLog stores the event in audit_logs.
func (c *Client) WriteLog(ctx context.Context, opts LogOptions, deliveryErr string) error {
	// jsonb columns need a JSON literal, not an empty string.
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	row := models.AuditLog{
		Service:       c.service,
		UserID:        opts.UserID,
		UserName:      opts.UserName,
		UserRole:      opts.UserRole,
		ResourceType:  opts.ResourceType,
		ResourceID:    opts.ResourceID,
		Action:        opts.Action,
		Description:   opts.Description,
		BeforeData:    beforeStr,
		AfterData:     afterStr,
		DeliveryError: deliveryErr,
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

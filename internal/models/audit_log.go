package models

import "time"

type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionSubmit  AuditAction = "submit"
	AuditActionApprove AuditAction = "approve"
	AuditActionReject  AuditAction = "reject"
	AuditActionDelete  AuditAction = "delete"
)

// AuditLog keeps audit events locally when the external audit service
// could not take them.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Service string `gorm:"size:100" json:"service"`

	UserID   uint     `gorm:"index" json:"user_id"`
	UserName string   `gorm:"size:100" json:"user_name"`
	UserRole UserRole `gorm:"size:20" json:"user_role"`

	// e.g. "budget_request"
	ResourceType string `gorm:"size:50;index" json:"resource_type"`
	ResourceID   uint   `gorm:"index" json:"resource_id"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	BeforeData string `gorm:"type:jsonb" json:"before_data"`
	AfterData  string `gorm:"type:jsonb" json:"after_data"`

	// Why the external delivery failed.
	DeliveryError string `gorm:"type:text" json:"delivery_error"`
}

package audit

import (
	"strconv"

	"budget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditLogResponse struct {
	ID            uint               `json:"id"`
	CreatedAt     string             `json:"created_at"`
	UserID        uint               `json:"user_id"`
	UserName      string             `json:"user_name"`
	UserRole      models.UserRole    `json:"user_role"`
	ResourceType  string             `json:"resource_type"`
	ResourceID    uint               `json:"resource_id"`
	Action        models.AuditAction `json:"action"`
	Description   string             `json:"description"`
	DeliveryError string             `json:"delivery_error,omitempty"`
}

// GET /api/audit-logs?resource_type=budget_request&resource_id=1&user_id=2&action=approve
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := db.WithContext(c.UserContext()).Model(&models.AuditLog{})

		if rt := c.Query("resource_type"); rt != "" {
			dbq = dbq.Where("resource_type = ?", rt)
		}
		if id, err := strconv.ParseUint(c.Query("resource_id"), 10, 64); err == nil && id > 0 {
			dbq = dbq.Where("resource_id = ?", id)
		}
		if id, err := strconv.ParseUint(c.Query("user_id"), 10, 64); err == nil && id > 0 {
			dbq = dbq.Where("user_id = ?", id)
		}
		if action := c.Query("action"); action != "" {
			dbq = dbq.Where("action = ?", action)
		}

		limit := c.QueryInt("limit", 100)
		if limit < 1 || limit > 500 {
			limit = 100
		}

		var logs []models.AuditLog
		if err := dbq.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, log := range logs {
			resp = append(resp, AuditLogResponse{
				ID:            log.ID,
				CreatedAt:     log.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:        log.UserID,
				UserName:      log.UserName,
				UserRole:      log.UserRole,
				ResourceType:  log.ResourceType,
				ResourceID:    log.ResourceID,
				Action:        log.Action,
				Description:   log.Description,
				DeliveryError: log.DeliveryError,
			})
		}

		return c.JSON(resp)
	}
}

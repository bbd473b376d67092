package notify

import (
	"context"
	"fmt"
	"time"

	"budget-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	TypeNewRequest = "new_request"
	TypeApproved   = "request_approved"
	TypeRejected   = "request_rejected"
)

type Notifier struct {
	db        *gorm.DB
	transport Transport
	log       *zap.Logger
	now       func() time.Time
}

func NewNotifier(db *gorm.DB, transport Transport, log *zap.Logger) *Notifier {
	return &Notifier{db: db, transport: transport, log: log, now: time.Now}
}

// Send records a pending notification, hands it to the transport and stores
// the outcome. The transport error is returned after it has been recorded.
func (n *Notifier) Send(ctx context.Context, requestID uint, kind string, msg Message) error {
	rec := models.BudgetRequestNotification{
		BudgetRequestID: requestID,
		Recipient:       msg.To,
		Subject:         msg.Subject,
		Message:         msg.Text,
		Channel:         "email",
		Type:            kind,
		Status:          models.NotificationPending,
		MaxRetries:      3,
	}
	if err := n.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record notification: %w", err)
	}

	sendErr := n.transport.Send(ctx, msg)

	updates := map[string]any{}
	if sendErr == nil {
		now := n.now()
		updates["status"] = models.NotificationSent
		updates["sent_at"] = now
	} else {
		updates["status"] = models.NotificationFailed
		updates["error"] = sendErr.Error()
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}
	if err := n.db.WithContext(ctx).Model(&models.BudgetRequestNotification{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
		n.log.Error("notification outcome not recorded", zap.Uint("notification_id", rec.ID), zap.Error(err))
	}
	if sendErr != nil {
		return fmt.Errorf("send %s to %s: %w", kind, msg.To, sendErr)
	}
	return nil
}

// ReviewerEmails returns Finance admins and super admins.
func (n *Notifier) ReviewerEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := n.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? OR (role = ? AND department = ?)", models.RoleSuperAdmin, models.RoleAdmin, models.DepartmentFinance).
		Order("id ASC").
		Pluck("email", &emails).Error
	return emails, err
}

func (n *Notifier) UserEmail(ctx context.Context, userID uint) (string, error) {
	var u models.User
	if err := n.db.WithContext(ctx).Select("email").First(&u, userID).Error; err != nil {
		return "", err
	}
	return u.Email, nil
}

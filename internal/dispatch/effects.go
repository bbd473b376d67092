package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budget-backend/internal/audit"
	"budget-backend/internal/budgetrequest"
	"budget-backend/internal/finance"
	"budget-backend/internal/models"
	"budget-backend/internal/notify"
	"budget-backend/internal/webhook"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AuditRecorder interface {
	Record(ctx context.Context, opts audit.LogOptions) error
}

type WebhookPublisher interface {
	Publish(ctx context.Context, eventType string, data any) ([]webhook.Delivery, error)
}

type Mailer interface {
	Send(ctx context.Context, requestID uint, kind string, msg notify.Message) error
	ReviewerEmails(ctx context.Context) ([]string, error)
	UserEmail(ctx context.Context, userID uint) (string, error)
}

type ReservationNotifier interface {
	NotifyReservation(ctx context.Context, r finance.Reservation) error
}

const (
	taskAudit       = "audit"
	taskWebhook     = "webhook"
	taskEmail       = "email"
	taskReservation = "finance_reservation"

	reservationAttempts = 3
	resourceType        = "budget_request"
)

// Effects turns committed lifecycle events into dispatcher tasks.
type Effects struct {
	d        *Dispatcher
	audit    AuditRecorder
	webhooks WebhookPublisher
	mail     Mailer
	finance  ReservationNotifier
	log      *zap.Logger
}

func NewEffects(d *Dispatcher, a AuditRecorder, w WebhookPublisher, m Mailer, f ReservationNotifier, log *zap.Logger) *Effects {
	return &Effects{d: d, audit: a, webhooks: w, mail: m, finance: f, log: log}
}

var _ budgetrequest.Effects = (*Effects)(nil)

// EventData is the webhook payload body for a budget request event.
type EventData struct {
	ID              uint                 `json:"id"`
	RequestCode     string               `json:"request_code"`
	Title           string               `json:"title"`
	Department      models.Department    `json:"department"`
	FiscalYear      int                  `json:"fiscal_year"`
	FiscalPeriod    string               `json:"fiscal_period"`
	Status          models.RequestStatus `json:"status"`
	AmountRequested decimal.Decimal      `json:"amount_requested"`
	ReservedAmount  decimal.NullDecimal  `json:"reserved_amount"`
	BudgetShortfall decimal.Decimal      `json:"budget_shortfall"`
	CreatedBy       uint                 `json:"created_by"`
	ActorID         uint                 `json:"actor_id"`
	ActorName       string               `json:"actor_name"`
	ReviewNotes     string               `json:"review_notes,omitempty"`
}

func eventData(r *models.BudgetRequest, actor budgetrequest.Actor) EventData {
	return EventData{
		ID:              r.ID,
		RequestCode:     r.RequestCode,
		Title:           r.Title,
		Department:      r.Department,
		FiscalYear:      r.FiscalYear,
		FiscalPeriod:    r.FiscalPeriod,
		Status:          r.Status,
		AmountRequested: r.AmountRequested,
		ReservedAmount:  r.ReservedAmount,
		BudgetShortfall: r.BudgetShortfall,
		CreatedBy:       r.CreatedBy,
		ActorID:         actor.ID,
		ActorName:       actor.Name,
		ReviewNotes:     r.ReviewNotes,
	}
}

func (e *Effects) Created(_ context.Context, req *models.BudgetRequest, actor budgetrequest.Actor) {
	r := *req
	e.enqueueAudit(&r, actor, models.AuditActionCreate, fmt.Sprintf("created %s for %s", r.RequestCode, r.AmountRequested.StringFixed(2)))
}

func (e *Effects) Submitted(_ context.Context, req *models.BudgetRequest, actor budgetrequest.Actor) {
	r := *req
	e.enqueueAudit(&r, actor, models.AuditActionSubmit, "submitted "+r.RequestCode)
	e.enqueueWebhook(webhook.EventSubmitted, eventData(&r, actor))
	e.enqueue(Task{
		Name:        taskEmail,
		MaxAttempts: 1,
		Run: func(ctx context.Context) error {
			to, err := e.mail.ReviewerEmails(ctx)
			if err != nil {
				return fmt.Errorf("reviewer lookup: %w", err)
			}
			msg := notify.Message{
				Subject: fmt.Sprintf("New budget request %s awaiting review", r.RequestCode),
				Text: fmt.Sprintf("%s (%s) requests %s for %s %d %s: %s",
					r.CreatedByName, r.Department, r.AmountRequested.StringFixed(2), r.Department, r.FiscalYear, r.FiscalPeriod, r.Title),
			}
			return e.sendAll(ctx, r.ID, notify.TypeNewRequest, to, msg)
		},
	})
}

func (e *Effects) Approved(_ context.Context, req *models.BudgetRequest, actor budgetrequest.Actor) {
	r := *req
	e.enqueueAudit(&r, actor, models.AuditActionApprove, fmt.Sprintf("approved %s, reserved %s", r.RequestCode, r.ReservedAmount.Decimal.StringFixed(2)))
	e.enqueueWebhook(webhook.EventApproved, eventData(&r, actor))
	e.enqueue(Task{
		Name:        taskReservation,
		MaxAttempts: reservationAttempts,
		Run: func(ctx context.Context) error {
			return e.finance.NotifyReservation(ctx, reservationFor(&r))
		},
	})
	e.enqueueRequesterEmail(&r, notify.TypeApproved,
		fmt.Sprintf("Budget request %s approved", r.RequestCode),
		fmt.Sprintf("Your request %q was approved. Reserved amount: %s.", r.Title, r.ReservedAmount.Decimal.StringFixed(2)))
}

func (e *Effects) Rejected(_ context.Context, req *models.BudgetRequest, actor budgetrequest.Actor) {
	r := *req
	e.enqueueAudit(&r, actor, models.AuditActionReject, "rejected "+r.RequestCode)
	e.enqueueWebhook(webhook.EventRejected, eventData(&r, actor))
	e.enqueueRequesterEmail(&r, notify.TypeRejected,
		fmt.Sprintf("Budget request %s rejected", r.RequestCode),
		fmt.Sprintf("Your request %q was rejected. Notes: %s", r.Title, r.ReviewNotes))
}

func (e *Effects) Deleted(_ context.Context, req *models.BudgetRequest, actor budgetrequest.Actor) {
	r := *req
	e.enqueueAudit(&r, actor, models.AuditActionDelete, "deleted draft "+r.RequestCode)
}

// reservationFor builds the Finance reservation for an approved request. The
// reservation lapses at the end of the request's fiscal period.
func reservationFor(r *models.BudgetRequest) finance.Reservation {
	res := finance.Reservation{
		BudgetRequestID: r.ID,
		Department:      r.Department,
		FiscalYear:      r.FiscalYear,
		FiscalPeriod:    r.FiscalPeriod,
		Amount:          r.ReservedAmount.Decimal,
		RequestCode:     r.RequestCode,
		IdempotencyKey:  finance.IdempotencyKey(resourceType, "reserve", r.ID),
	}
	if _, end, err := finance.PeriodBounds(r.FiscalYear, r.FiscalPeriod); err == nil {
		res.ExpiresAt = end
	}
	return res
}

func (e *Effects) enqueueAudit(r *models.BudgetRequest, actor budgetrequest.Actor, action models.AuditAction, desc string) {
	opts := audit.LogOptions{
		UserID:       actor.ID,
		UserName:     actor.Name,
		UserRole:     actor.Role,
		ResourceType: resourceType,
		ResourceID:   r.ID,
		Action:       action,
		Description:  desc,
		After:        eventData(r, actor),
	}
	e.enqueue(Task{
		Name:        taskAudit,
		MaxAttempts: 1,
		Run:         func(ctx context.Context) error { return e.audit.Record(ctx, opts) },
	})
}

func (e *Effects) enqueueWebhook(event string, data EventData) {
	e.enqueue(Task{
		Name:        taskWebhook,
		MaxAttempts: 1,
		Run: func(ctx context.Context) error {
			_, err := e.webhooks.Publish(ctx, event, data)
			return err
		},
	})
}

func (e *Effects) enqueueRequesterEmail(r *models.BudgetRequest, kind, subject, text string) {
	id, createdBy := r.ID, r.CreatedBy
	e.enqueue(Task{
		Name:        taskEmail,
		MaxAttempts: 1,
		Run: func(ctx context.Context) error {
			to, err := e.mail.UserEmail(ctx, createdBy)
			if err != nil {
				return fmt.Errorf("requester lookup: %w", err)
			}
			return e.sendAll(ctx, id, kind, []string{to}, notify.Message{Subject: subject, Text: text})
		},
	})
}

func (e *Effects) sendAll(ctx context.Context, requestID uint, kind string, to []string, msg notify.Message) error {
	var errs []error
	for _, addr := range to {
		m := msg
		m.To = addr
		if err := e.mail.Send(ctx, requestID, kind, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Effects) enqueue(t Task) {
	if t.Timeout == 0 {
		t.Timeout = 15 * time.Second
	}
	_ = e.d.Enqueue(t)
}

package budgetrequest

import (
	"context"
	"strings"
	"time"

	"budget-backend/internal/metrics"
	"budget-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Effects receives committed lifecycle events. Implementations must not
// block and must not fail the caller; delivery problems are theirs to log.
type Effects interface {
	Created(ctx context.Context, req *models.BudgetRequest, actor Actor)
	Submitted(ctx context.Context, req *models.BudgetRequest, actor Actor)
	Approved(ctx context.Context, req *models.BudgetRequest, actor Actor)
	Rejected(ctx context.Context, req *models.BudgetRequest, actor Actor)
	Deleted(ctx context.Context, req *models.BudgetRequest, actor Actor)
}

// NopEffects discards every event.
type NopEffects struct{}

func (NopEffects) Created(context.Context, *models.BudgetRequest, Actor)   {}
func (NopEffects) Submitted(context.Context, *models.BudgetRequest, Actor) {}
func (NopEffects) Approved(context.Context, *models.BudgetRequest, Actor)  {}
func (NopEffects) Rejected(context.Context, *models.BudgetRequest, Actor)  {}
func (NopEffects) Deleted(context.Context, *models.BudgetRequest, Actor)   {}

type ApproveInput struct {
	ReservedAmount   *decimal.Decimal `json:"reserved_amount"`
	BufferPercentage *decimal.Decimal `json:"buffer_percentage"`
	ReviewNotes      string           `json:"review_notes"`
}

type RejectInput struct {
	ReviewNotes string `json:"review_notes"`
}

// Engine runs the request lifecycle on top of Store and hands every
// committed change to Effects.
type Engine struct {
	store   *Store
	effects Effects
	log     *zap.Logger
	now     func() time.Time
}

func NewEngine(store *Store, effects Effects, log *zap.Logger) *Engine {
	if effects == nil {
		effects = NopEffects{}
	}
	return &Engine{store: store, effects: effects, log: log, now: time.Now}
}

func (e *Engine) Store() *Store { return e.store }

// Create validates and stores a request. Department defaults to the actor's;
// only super admins may file for another department.
func (e *Engine) Create(ctx context.Context, in CreateInput, actor Actor) (*models.BudgetRequest, error) {
	if in.Department == "" {
		in.Department = actor.Department
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	if in.Department != actor.Department && !actor.IsSuperAdmin() {
		return nil, ErrForbidden
	}

	initial := models.StatusDraft
	if in.Submit {
		initial = models.StatusSubmitted
	}
	req, err := e.store.Create(ctx, in, actor, initial)
	if err != nil {
		return nil, err
	}

	e.log.Info("budget request created",
		zap.Uint("id", req.ID),
		zap.String("code", req.RequestCode),
		zap.String("department", string(req.Department)),
		zap.String("amount", req.AmountRequested.StringFixed(2)),
		zap.String("shortfall", req.BudgetShortfall.StringFixed(2)),
		zap.Bool("budget_stale", req.BudgetIsStale),
	)
	metrics.TransitionsTotal.WithLabelValues(string(models.StatusDraft)).Inc()
	e.effects.Created(ctx, req, actor)
	if initial == models.StatusSubmitted {
		metrics.TransitionsTotal.WithLabelValues(string(models.StatusSubmitted)).Inc()
		e.effects.Submitted(ctx, req, actor)
	}
	return req, nil
}

// Submit moves a DRAFT to SUBMITTED. The creator or a department admin may
// submit.
func (e *Engine) Submit(ctx context.Context, id uint, actor Actor) (*models.BudgetRequest, error) {
	req, err := e.store.transition(ctx, id, models.StatusDraft, models.StatusSubmitted,
		func(r *models.BudgetRequest) (map[string]any, models.BudgetRequestApprovalHistory, error) {
			if r.CreatedBy != actor.ID && !actor.AdminOf(r.Department) {
				return nil, models.BudgetRequestApprovalHistory{}, ErrForbidden
			}
			now := e.now()
			return map[string]any{"submitted_at": now},
				models.BudgetRequestApprovalHistory{
					Action:    models.ActionSubmitted,
					ActorID:   actor.ID,
					ActorName: actor.Name,
				}, nil
		})
	if err != nil {
		return nil, err
	}
	e.done("submitted", req, actor)
	e.effects.Submitted(ctx, req, actor)
	return req, nil
}

// Approve reserves funds for a SUBMITTED request: the reserved base (the
// requested amount unless overridden) plus its buffer.
func (e *Engine) Approve(ctx context.Context, id uint, in ApproveInput, actor Actor) (*models.BudgetRequest, error) {
	if !actor.Reviewer() {
		return nil, ErrForbidden
	}
	if in.BufferPercentage != nil && (in.BufferPercentage.IsNegative() || in.BufferPercentage.GreaterThan(decimal.NewFromInt(100))) {
		return nil, invalid("buffer_percentage", "must be between 0 and 100")
	}
	if in.BufferPercentage != nil && !in.BufferPercentage.Equal(in.BufferPercentage.Round(2)) {
		return nil, invalid("buffer_percentage", "must have at most 2 decimal places")
	}
	if in.ReservedAmount != nil {
		if !in.ReservedAmount.IsPositive() {
			return nil, invalid("reserved_amount", "must be greater than 0")
		}
		if err := checkMoney("reserved_amount", *in.ReservedAmount); err != nil {
			return nil, err
		}
	}
	notes := strings.TrimSpace(in.ReviewNotes)

	req, err := e.store.transition(ctx, id, models.StatusSubmitted, models.StatusApproved,
		func(r *models.BudgetRequest) (map[string]any, models.BudgetRequestApprovalHistory, error) {
			pct := decimal.Zero
			if in.BufferPercentage != nil {
				pct = *in.BufferPercentage
			}
			base := r.AmountRequested
			if in.ReservedAmount != nil {
				base = *in.ReservedAmount
			}
			buffer := base.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
			reserved := base.Add(buffer)
			if err := checkMoney("reserved_amount", reserved); err != nil {
				return nil, models.BudgetRequestApprovalHistory{}, err
			}

			now := e.now()
			reviewer := actor.ID
			updates := map[string]any{
				"reserved_amount":   decimal.NewNullDecimal(reserved),
				"buffer_amount":     buffer,
				"buffer_percentage": pct,
				"is_reserved":       true,
				"reserved_at":       now,
				"approved_by":       reviewer,
				"approved_at":       now,
				"reviewed_by":       reviewer,
				"reviewed_by_name":  actor.Name,
				"reviewed_at":       now,
				"review_notes":      notes,
			}
			return updates, models.BudgetRequestApprovalHistory{
				Action:       models.ActionApproved,
				ActorID:      actor.ID,
				ActorName:    actor.Name,
				Comment:      notes,
				AmountBefore: decimal.NewNullDecimal(r.AmountRequested),
				AmountAfter:  decimal.NewNullDecimal(reserved),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	e.done("approved", req, actor)
	e.effects.Approved(ctx, req, actor)
	return req, nil
}

// Reject closes a SUBMITTED request. Review notes are mandatory.
func (e *Engine) Reject(ctx context.Context, id uint, in RejectInput, actor Actor) (*models.BudgetRequest, error) {
	if !actor.Reviewer() {
		return nil, ErrForbidden
	}
	notes := strings.TrimSpace(in.ReviewNotes)
	if notes == "" {
		return nil, invalid("review_notes", "required when rejecting")
	}

	req, err := e.store.transition(ctx, id, models.StatusSubmitted, models.StatusRejected,
		func(r *models.BudgetRequest) (map[string]any, models.BudgetRequestApprovalHistory, error) {
			now := e.now()
			reviewer := actor.ID
			return map[string]any{
					"rejected_by":      reviewer,
					"rejected_at":      now,
					"reviewed_by":      reviewer,
					"reviewed_by_name": actor.Name,
					"reviewed_at":      now,
					"review_notes":     notes,
				}, models.BudgetRequestApprovalHistory{
					Action:    models.ActionRejected,
					ActorID:   actor.ID,
					ActorName: actor.Name,
					Comment:   notes,
				}, nil
		})
	if err != nil {
		return nil, err
	}
	e.done("rejected", req, actor)
	e.effects.Rejected(ctx, req, actor)
	return req, nil
}

// Delete soft-deletes a DRAFT request.
func (e *Engine) Delete(ctx context.Context, id uint, actor Actor) error {
	req, err := e.store.SoftDelete(ctx, id, actor)
	if err != nil {
		return err
	}
	e.log.Info("budget request deleted", zap.Uint("id", id), zap.Uint("actor", actor.ID))
	e.effects.Deleted(ctx, req, actor)
	return nil
}

// Get applies the same visibility rules as List to a single request.
func (e *Engine) Get(ctx context.Context, id uint, viewer Actor) (*models.BudgetRequest, error) {
	req, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(viewer, req) {
		return nil, ErrNotFound
	}
	return req, nil
}

// CanView reports whether viewer may read req.
func CanView(viewer Actor, req *models.BudgetRequest) bool {
	return viewer.SeesAll() || viewer.AdminOf(req.Department) || req.CreatedBy == viewer.ID
}

func (e *Engine) done(verb string, req *models.BudgetRequest, actor Actor) {
	metrics.TransitionsTotal.WithLabelValues(string(req.Status)).Inc()
	e.log.Info("budget request "+verb,
		zap.Uint("id", req.ID),
		zap.String("code", req.RequestCode),
		zap.String("status", string(req.Status)),
		zap.Uint("actor", actor.ID),
	)
}

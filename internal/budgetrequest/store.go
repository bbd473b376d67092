package budgetrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget-backend/internal/cache"
	"budget-backend/internal/finance"
	"budget-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BudgetResolver supplies the department budget snapshot used for
// shortfall computation, normally *finance.Mirror.
type BudgetResolver interface {
	SyncDepartmentBudget(ctx context.Context, dept models.Department, year int, period string) (*models.CachedDepartmentBudget, error)
}

type StoreOptions struct {
	ListTTL      time.Duration
	DetailTTL    time.Duration
	AnalyticsTTL time.Duration
}

const historyDetailLimit = 10

type Store struct {
	db      *gorm.DB
	cache   cache.Cache
	budgets BudgetResolver
	opts    StoreOptions
	log     *zap.Logger
	now     func() time.Time
}

func NewStore(db *gorm.DB, c cache.Cache, budgets BudgetResolver, opts StoreOptions, log *zap.Logger) *Store {
	return &Store{db: db, cache: c, budgets: budgets, opts: opts, log: log, now: time.Now}
}

func newRequestCode(t time.Time) string {
	return fmt.Sprintf("BR-%s-%s", t.Format("20060102"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
}

// Create persists a new request with its items and opening history in one
// transaction. initial is DRAFT or SUBMITTED.
func (s *Store) Create(ctx context.Context, in CreateInput, actor Actor, initial models.RequestStatus) (*models.BudgetRequest, error) {
	if initial != models.StatusDraft && initial != models.StatusSubmitted {
		return nil, invalid("status", "initial status must be DRAFT or SUBMITTED")
	}

	now := s.now()
	year, period := in.FiscalYear, in.FiscalPeriod
	if year == 0 || period == "" {
		cy, cp := finance.CurrentPeriod(now)
		if year == 0 {
			year = cy
		}
		if period == "" {
			period = cp
		}
	}

	budget, err := s.budgets.SyncDepartmentBudget(ctx, in.Department, year, period)
	if err != nil {
		return nil, fmt.Errorf("resolve department budget: %w", err)
	}

	shortfall := in.AmountRequested.Sub(budget.RemainingAmount)
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	req := models.BudgetRequest{
		RequestCode:               newRequestCode(now),
		Title:                     in.Title,
		Description:               in.Description,
		Justification:             in.Justification,
		Priority:                  priority,
		CreatedBy:                 actor.ID,
		CreatedByName:             actor.Name,
		CreatedByRole:             actor.Role,
		Department:                in.Department,
		FiscalYear:                year,
		FiscalPeriod:              period,
		AmountRequested:           in.AmountRequested,
		BufferAmount:              decimal.Zero,
		BufferPercentage:          decimal.Zero,
		DepartmentBudgetRemaining: budget.RemainingAmount,
		BudgetShortfall:           shortfall,
		BudgetBefore:              budget.RemainingAmount,
		CachedBudgetID:            budget.BudgetID,
		BudgetIsStale:             budget.IsStale,
		Status:                    initial,
	}
	if initial == models.StatusSubmitted {
		req.SubmittedAt = &now
	}

	items := make([]models.BudgetRequestItemAllocation, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, models.BudgetRequestItemAllocation{
			ItemName:    it.ItemName,
			Quantity:    it.Quantity,
			UnitCost:    it.UnitCost,
			TotalCost:   it.TotalCost,
			Supplier:    it.Supplier,
			Priority:    it.Priority,
			IsEssential: it.IsEssential,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items", "History").Create(&req).Error; err != nil {
			return fmt.Errorf("insert budget request: %w", err)
		}
		if len(items) > 0 {
			for i := range items {
				items[i].BudgetRequestID = req.ID
			}
			if err := tx.CreateInBatches(&items, 100).Error; err != nil {
				return fmt.Errorf("insert item allocations: %w", err)
			}
		}

		history := []models.BudgetRequestApprovalHistory{{
			BudgetRequestID: req.ID,
			ToStatus:        models.StatusDraft,
			Action:          models.ActionCreated,
			ActorID:         actor.ID,
			ActorName:       actor.Name,
		}}
		if initial == models.StatusSubmitted {
			history = append(history, models.BudgetRequestApprovalHistory{
				BudgetRequestID: req.ID,
				FromStatus:      models.StatusDraft,
				ToStatus:        models.StatusSubmitted,
				Action:          models.ActionSubmitted,
				ActorID:         actor.ID,
				ActorName:       actor.Name,
			})
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("insert approval history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, req.ID)
	return s.fetch(ctx, req.ID)
}

// FindByID is read-through on the detail cache. The payload is the same for
// every viewer; callers authorize after retrieval.
func (s *Store) FindByID(ctx context.Context, id uint) (*models.BudgetRequest, error) {
	return cache.GetOrCompute(ctx, s.cache, s.log, cache.DetailKey(id), s.opts.DetailTTL, func() (*models.BudgetRequest, error) {
		return s.fetch(ctx, id)
	})
}

func (s *Store) fetch(ctx context.Context, id uint) (*models.BudgetRequest, error) {
	var req models.BudgetRequest
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC, id DESC").Limit(historyDetailLimit)
		}).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load budget request %d: %w", id, err)
	}
	return &req, nil
}

// History returns the full approval trail, newest first.
func (s *Store) History(ctx context.Context, id uint) ([]models.BudgetRequestApprovalHistory, error) {
	var rows []models.BudgetRequestApprovalHistory
	err := s.db.WithContext(ctx).
		Where("budget_request_id = ?", id).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

type ListFilter struct {
	Status      string     `json:"status,omitempty"`
	Department  string     `json:"department,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	CreatedFrom *time.Time `json:"created_from,omitempty"`
	CreatedTo   *time.Time `json:"created_to,omitempty"`
	Search      string     `json:"search,omitempty"`
	Page        int        `json:"page"`
	Limit       int        `json:"limit"`
}

func (f *ListFilter) normalize() {
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	f.Department = strings.ToLower(strings.TrimSpace(f.Department))
	f.Priority = strings.ToLower(strings.TrimSpace(f.Priority))
	f.Search = strings.TrimSpace(f.Search)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

type ListResult struct {
	Items []models.BudgetRequest `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

// List is cached per (viewer, role, filter set).
func (s *Store) List(ctx context.Context, f ListFilter, viewer Actor) (*ListResult, error) {
	f.normalize()
	key := cache.ListKey("list", viewer.ID, string(viewer.Role), f)
	return cache.GetOrCompute(ctx, s.cache, s.log, key, s.opts.ListTTL, func() (*ListResult, error) {
		return s.list(ctx, f, viewer)
	})
}

// ListAll runs the filter without pagination or caching, for exports.
func (s *Store) ListAll(ctx context.Context, f ListFilter, viewer Actor) ([]models.BudgetRequest, error) {
	f.normalize()
	var rows []models.BudgetRequest
	err := s.scoped(ctx, f, viewer).Order("created_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

func (s *Store) scoped(ctx context.Context, f ListFilter, viewer Actor) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.BudgetRequest{}).Where("is_deleted = ?", false)

	switch {
	case viewer.SeesAll():
	case viewer.Role == models.RoleAdmin:
		q = q.Where("department = ?", viewer.Department)
	default:
		q = q.Where("created_by = ?", viewer.ID)
	}

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Department != "" {
		q = q.Where("department = ?", f.Department)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		q = q.Where("created_at <= ?", *f.CreatedTo)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(request_code) LIKE ?", like, like, like)
	}
	return q
}

func (s *Store) list(ctx context.Context, f ListFilter, viewer Actor) (*ListResult, error) {
	res := &ListResult{Items: []models.BudgetRequest{}, Page: f.Page, Limit: f.Limit}

	if err := s.scoped(ctx, f, viewer).Count(&res.Total).Error; err != nil {
		return nil, fmt.Errorf("count budget requests: %w", err)
	}
	err := s.scoped(ctx, f, viewer).
		Order("created_at DESC, id DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&res.Items).Error
	if err != nil {
		return nil, fmt.Errorf("list budget requests: %w", err)
	}
	return res, nil
}

type DepartmentTotals struct {
	Department models.Department `json:"department"`
	Count      int64             `json:"count"`
	Requested  decimal.Decimal   `json:"requested"`
	Reserved   decimal.Decimal   `json:"reserved"`
	Shortfall  decimal.Decimal   `json:"shortfall"`
}

type Analytics struct {
	FiscalYear   int                `json:"fiscal_year"`
	ByStatus     map[string]int64   `json:"by_status"`
	ByDepartment []DepartmentTotals `json:"by_department"`
}

// Analytics is cached in its own namespace and dropped on every mutation.
func (s *Store) Analytics(ctx context.Context, fiscalYear int) (*Analytics, error) {
	return cache.GetOrCompute(ctx, s.cache, s.log, cache.AnalyticsKey("year:", fiscalYear), s.opts.AnalyticsTTL, func() (*Analytics, error) {
		var rows []models.BudgetRequest
		err := s.db.WithContext(ctx).
			Select("department", "status", "amount_requested", "reserved_amount", "budget_shortfall").
			Where("is_deleted = ? AND fiscal_year = ?", false, fiscalYear).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("analytics query: %w", err)
		}

		out := &Analytics{FiscalYear: fiscalYear, ByStatus: map[string]int64{}}
		totals := map[models.Department]*DepartmentTotals{}
		for _, r := range rows {
			out.ByStatus[string(r.Status)]++
			t, ok := totals[r.Department]
			if !ok {
				t = &DepartmentTotals{Department: r.Department}
				totals[r.Department] = t
			}
			t.Count++
			t.Requested = t.Requested.Add(r.AmountRequested)
			t.Shortfall = t.Shortfall.Add(r.BudgetShortfall)
			if r.ReservedAmount.Valid {
				t.Reserved = t.Reserved.Add(r.ReservedAmount.Decimal)
			}
		}
		for _, d := range models.Departments {
			if t, ok := totals[d]; ok {
				out.ByDepartment = append(out.ByDepartment, *t)
			}
		}
		return out, nil
	})
}

// transitionFunc validates the loaded row and returns the column updates and
// history row for the transition.
type transitionFunc func(req *models.BudgetRequest) (map[string]any, models.BudgetRequestApprovalHistory, error)

// transition moves a request from one status to another. The status update
// and the history insert commit together or not at all.
func (s *Store) transition(ctx context.Context, id uint, from, to models.RequestStatus, fn transitionFunc) (*models.BudgetRequest, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.BudgetRequest
		err := tx.Where("id = ? AND is_deleted = ?", id, false).First(&req).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load budget request %d: %w", id, err)
		}

		updates, hist, err := fn(&req)
		if err != nil {
			return err
		}
		if req.Status != from {
			return &TransitionError{ID: id, Current: req.Status, Required: from}
		}
		updates["status"] = to

		res := tx.Model(&models.BudgetRequest{}).
			Where("id = ? AND status = ? AND is_deleted = ?", id, from, false).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update budget request %d: %w", id, res.Error)
		}
		if res.RowsAffected != 1 {
			return lostTransition(tx, id, from)
		}

		hist.BudgetRequestID = id
		hist.FromStatus = from
		hist.ToStatus = to
		if err := tx.Create(&hist).Error; err != nil {
			return fmt.Errorf("insert approval history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, id)
	req, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	// A read computed before the commit may still be storing its payload;
	// overwrite it with the committed row.
	if err := cache.SetJSON(ctx, s.cache, cache.DetailKey(id), req, s.opts.DetailTTL); err != nil {
		s.log.Warn("cache refresh failed", zap.Uint("id", id), zap.Error(err))
	}
	return req, nil
}

// lostTransition explains a guarded update that matched no row: the request
// moved on or was deleted after it was loaded.
func lostTransition(tx *gorm.DB, id uint, from models.RequestStatus) error {
	var current models.BudgetRequest
	err := tx.Select("status", "is_deleted").Where("id = ?", id).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reload budget request %d status: %w", id, err)
	}
	if current.IsDeleted {
		return ErrNotFound
	}
	return &TransitionError{ID: id, Current: current.Status, Required: from}
}

// SoftDelete hides a DRAFT request. Only its creator or a department admin
// may do so.
func (s *Store) SoftDelete(ctx context.Context, id uint, actor Actor) (*models.BudgetRequest, error) {
	var req models.BudgetRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND is_deleted = ?", id, false).First(&req).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if req.CreatedBy != actor.ID && !actor.AdminOf(req.Department) {
			return ErrForbidden
		}
		if req.Status != models.StatusDraft {
			return &TransitionError{ID: id, Current: req.Status, Required: models.StatusDraft}
		}
		res := tx.Model(&models.BudgetRequest{}).
			Where("id = ? AND status = ? AND is_deleted = ?", id, models.StatusDraft, false).
			Update("is_deleted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	req.IsDeleted = true
	s.Invalidate(ctx, id)
	return &req, nil
}

// Invalidate drops the detail entry for id, every list entry and the
// analytics namespace.
func (s *Store) Invalidate(ctx context.Context, id uint) {
	if err := s.cache.Delete(ctx, cache.DetailKey(id)); err != nil {
		s.log.Warn("detail cache invalidation failed", zap.Uint("id", id), zap.Error(err))
	}
	for _, prefix := range []string{cache.ListPrefix, cache.AnalyticsPrefix} {
		if err := s.cache.DeletePrefix(ctx, prefix); err != nil {
			s.log.Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budget-backend/internal/cache"
	"budget-backend/internal/metrics"
	"budget-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBudgetUnavailable = errors.New("department budget unavailable")

// BudgetSource is the authoritative budget lookup, normally *Client.
type BudgetSource interface {
	GetDepartmentBudget(ctx context.Context, dept models.Department, year int, period string) (*Snapshot, error)
}

type MirrorOptions struct {
	SyntheticAllocation decimal.Decimal
	CacheTTL            time.Duration
}

// Mirror answers "what is the remaining budget" for a department/period and
// degrades to stale or synthetic rows when Finance cannot be reached.
type Mirror struct {
	db     *gorm.DB
	source BudgetSource
	cache  cache.Cache
	opts   MirrorOptions
	log    *zap.Logger
	now    func() time.Time
}

func NewMirror(db *gorm.DB, source BudgetSource, c cache.Cache, opts MirrorOptions, log *zap.Logger) *Mirror {
	return &Mirror{db: db, source: source, cache: c, opts: opts, log: log, now: time.Now}
}

var budgetKeyColumns = []clause.Column{{Name: "department"}, {Name: "fiscal_year"}, {Name: "fiscal_period"}}

func (m *Mirror) SyncDepartmentBudget(ctx context.Context, dept models.Department, year int, period string) (*models.CachedDepartmentBudget, error) {
	key := cache.BudgetKey(string(dept), year, period)
	if hit, ok := cache.GetJSON[models.CachedDepartmentBudget](ctx, m.cache, key); ok {
		metrics.BudgetSyncTotal.WithLabelValues("cache").Inc()
		return &hit, nil
	}

	snap, err := m.source.GetDepartmentBudget(ctx, dept, year, period)
	if err == nil {
		row, uerr := m.upsertLive(ctx, dept, year, period, snap)
		if uerr == nil {
			if cerr := cache.SetJSON(ctx, m.cache, key, row, m.opts.CacheTTL); cerr != nil {
				m.log.Warn("budget cache set failed", zap.String("key", key), zap.Error(cerr))
			}
			metrics.BudgetSyncTotal.WithLabelValues("live").Inc()
			return row, nil
		}
		m.log.Error("budget mirror upsert failed", zap.String("department", string(dept)), zap.Error(uerr))
		err = uerr
	}

	m.log.Warn("finance budget sync failed, using fallback",
		zap.String("department", string(dept)),
		zap.Int("fiscal_year", year),
		zap.String("fiscal_period", period),
		zap.Error(err),
	)
	return m.fallback(ctx, dept, year, period)
}

func (m *Mirror) upsertLive(ctx context.Context, dept models.Department, year int, period string, snap *Snapshot) (*models.CachedDepartmentBudget, error) {
	row := models.CachedDepartmentBudget{
		BudgetID:        snap.ID,
		Department:      dept,
		FiscalYear:      year,
		FiscalPeriod:    period,
		AllocatedAmount: snap.AllocatedAmount,
		UsedAmount:      snap.UsedAmount,
		ReservedAmount:  snap.ReservedAmount,
		RemainingAmount: snap.RemainingAmount,
		PeriodStart:     snap.PeriodStart,
		PeriodEnd:       snap.PeriodEnd,
		LastSyncedAt:    m.now(),
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: budgetKeyColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"budget_id":        row.BudgetID,
			"allocated_amount": row.AllocatedAmount,
			"used_amount":      row.UsedAmount,
			"reserved_amount":  row.ReservedAmount,
			"remaining_amount": row.RemainingAmount,
			"period_start":     row.PeriodStart,
			"period_end":       row.PeriodEnd,
			"last_synced_at":   row.LastSyncedAt,
			"is_stale":         false,
			"is_synthetic":     false,
			"updated_at":       m.now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert cached budget: %w", err)
	}
	return m.load(ctx, dept, year, period)
}

func (m *Mirror) fallback(ctx context.Context, dept models.Department, year int, period string) (*models.CachedDepartmentBudget, error) {
	row, err := m.load(ctx, dept, year, period)
	if err == nil {
		if uerr := m.db.WithContext(ctx).Model(row).Update("is_stale", true).Error; uerr != nil {
			m.log.Warn("mark cached budget stale failed", zap.Uint("id", row.ID), zap.Error(uerr))
		}
		row.IsStale = true
		metrics.BudgetSyncTotal.WithLabelValues("stale").Inc()
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBudgetUnavailable, err)
	}

	if _, err := m.persistSynthetic(ctx, dept, year, period); err != nil {
		return nil, err
	}

	row, err = m.load(ctx, dept, year, period)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBudgetUnavailable, err)
	}
	return row, nil
}

// persistSynthetic stores a placeholder budget for the triple. created is
// false when a concurrent sync stored a row first; that row is kept.
func (m *Mirror) persistSynthetic(ctx context.Context, dept models.Department, year int, period string) (bool, error) {
	start, end, err := PeriodBounds(year, period)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBudgetUnavailable, err)
	}
	synthetic := models.CachedDepartmentBudget{
		BudgetID:        SyntheticBudgetID(dept, year, period),
		Department:      dept,
		FiscalYear:      year,
		FiscalPeriod:    period,
		AllocatedAmount: m.opts.SyntheticAllocation,
		UsedAmount:      decimal.Zero,
		ReservedAmount:  decimal.Zero,
		RemainingAmount: m.opts.SyntheticAllocation,
		PeriodStart:     start,
		PeriodEnd:       end,
		LastSyncedAt:    m.now(),
		IsStale:         true,
		IsSynthetic:     true,
	}
	res := m.db.WithContext(ctx).Clauses(clause.OnConflict{Columns: budgetKeyColumns, DoNothing: true}).Create(&synthetic)
	if res.Error != nil {
		return false, fmt.Errorf("%w: persist synthetic budget: %v", ErrBudgetUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		m.log.Debug("cached budget appeared during fallback, keeping it",
			zap.String("department", string(dept)),
			zap.Int("fiscal_year", year),
			zap.String("fiscal_period", period),
		)
		return false, nil
	}

	m.log.Warn("synthetic department budget in use, shortfall figures are approximate",
		zap.String("department", string(dept)),
		zap.Int("fiscal_year", year),
		zap.String("fiscal_period", period),
		zap.Int64("budget_id", synthetic.BudgetID),
		zap.String("allocated", synthetic.AllocatedAmount.String()),
	)
	metrics.SyntheticFallbackTotal.WithLabelValues(string(dept)).Inc()
	metrics.BudgetSyncTotal.WithLabelValues("synthetic").Inc()
	return true, nil
}

func (m *Mirror) load(ctx context.Context, dept models.Department, year int, period string) (*models.CachedDepartmentBudget, error) {
	var row models.CachedDepartmentBudget
	err := m.db.WithContext(ctx).
		Where("department = ? AND fiscal_year = ? AND fiscal_period = ?", dept, year, period).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

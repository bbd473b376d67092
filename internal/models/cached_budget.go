package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CachedDepartmentBudget mirrors the Finance system's snapshot for one
// department and fiscal period. BudgetID is Finance's id, or a negative
// synthetic id when the row was fabricated during an outage.
type CachedDepartmentBudget struct {
	ID              uint            `gorm:"primaryKey" json:"-"`
	BudgetID        int64           `gorm:"not null" json:"id"`
	Department      Department      `gorm:"size:30;not null;uniqueIndex:idx_cached_budget_key" json:"department"`
	FiscalYear      int             `gorm:"not null;uniqueIndex:idx_cached_budget_key" json:"fiscal_year"`
	FiscalPeriod    string          `gorm:"size:4;not null;uniqueIndex:idx_cached_budget_key" json:"fiscal_period"`
	AllocatedAmount decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"allocated_amount"`
	UsedAmount      decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"used_amount"`
	ReservedAmount  decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"reserved_amount"`
	RemainingAmount decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"remaining_amount"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	LastSyncedAt    time.Time       `json:"last_synced_at"`
	IsStale         bool            `gorm:"not null;default:false" json:"is_stale"`
	IsSynthetic     bool            `gorm:"not null;default:false" json:"is_synthetic"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

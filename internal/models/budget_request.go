package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	StatusDraft     RequestStatus = "DRAFT"
	StatusSubmitted RequestStatus = "SUBMITTED"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	// StatusCancelled exists in the schema; no operation transitions to it yet.
	StatusCancelled RequestStatus = "CANCELLED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type BudgetRequest struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	RequestCode string `gorm:"size:32;uniqueIndex;not null" json:"request_code"`

	Title         string   `gorm:"size:200;not null" json:"title"`
	Description   string   `gorm:"type:text" json:"description"`
	Justification string   `gorm:"type:text" json:"justification"`
	Priority      Priority `gorm:"size:10;not null;default:'medium'" json:"priority"`

	CreatedBy     uint       `gorm:"index;not null" json:"created_by"`
	CreatedByName string     `gorm:"size:100" json:"created_by_name"`
	CreatedByRole UserRole   `gorm:"size:20" json:"created_by_role"`
	Department    Department `gorm:"size:30;index;not null" json:"department"`

	FiscalYear   int    `gorm:"index;not null" json:"fiscal_year"`
	FiscalPeriod string `gorm:"size:4;not null" json:"fiscal_period"`

	AmountRequested  decimal.Decimal     `gorm:"type:numeric(15,2);not null" json:"amount_requested"`
	ReservedAmount   decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"reserved_amount"`
	BufferAmount     decimal.Decimal     `gorm:"type:numeric(15,2);not null;default:0" json:"buffer_amount"`
	BufferPercentage decimal.Decimal     `gorm:"type:numeric(5,2);not null;default:0" json:"buffer_percentage"`
	IsReserved       bool                `gorm:"not null;default:false" json:"is_reserved"`
	ReservedAt       *time.Time          `json:"reserved_at"`

	// Budget snapshot taken at creation.
	DepartmentBudgetRemaining decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"department_budget_remaining"`
	BudgetShortfall           decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"budget_shortfall"`
	BudgetBefore              decimal.Decimal `gorm:"type:numeric(15,2);not null;default:0" json:"budget_before"`
	CachedBudgetID            int64           `json:"cached_budget_id"`
	BudgetIsStale             bool            `gorm:"not null;default:false" json:"budget_is_stale"`

	Status RequestStatus `gorm:"size:20;index;not null" json:"status"`

	ReviewedBy     *uint      `json:"reviewed_by"`
	ReviewedByName string     `gorm:"size:100" json:"reviewed_by_name"`
	ReviewNotes    string     `gorm:"type:text" json:"review_notes"`
	ReviewedAt     *time.Time `json:"reviewed_at"`

	SubmittedAt *time.Time `json:"submitted_at"`
	ApprovedBy  *uint      `json:"approved_by"`
	ApprovedAt  *time.Time `json:"approved_at"`
	RejectedBy  *uint      `json:"rejected_by"`
	RejectedAt  *time.Time `json:"rejected_at"`
	CancelledAt *time.Time `json:"cancelled_at"`

	// Escalation columns are carried in the schema but nothing drives them.
	EscalationLevel int        `gorm:"not null;default:0" json:"escalation_level"`
	SLADeadline     *time.Time `json:"sla_deadline"`
	IsOverdue       bool       `gorm:"not null;default:false" json:"is_overdue"`

	IsDeleted bool      `gorm:"index;not null;default:false" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items   []BudgetRequestItemAllocation  `gorm:"foreignKey:BudgetRequestID;constraint:OnDelete:CASCADE" json:"items"`
	History []BudgetRequestApprovalHistory `gorm:"foreignKey:BudgetRequestID" json:"history,omitempty"`
}

type BudgetRequestItemAllocation struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	BudgetRequestID uint            `gorm:"index;not null" json:"budget_request_id"`
	ItemName        string          `gorm:"size:200;not null" json:"item_name"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	UnitCost        decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"unit_cost"`
	TotalCost       decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"total_cost"`
	Supplier        string          `gorm:"size:200" json:"supplier"`
	Priority        Priority        `gorm:"size:10" json:"priority"`
	IsEssential     bool            `gorm:"not null;default:false" json:"is_essential"`
	CreatedAt       time.Time       `json:"created_at"`
}

type HistoryAction string

const (
	ActionCreated   HistoryAction = "CREATED"
	ActionSubmitted HistoryAction = "SUBMITTED"
	ActionApproved  HistoryAction = "APPROVED"
	ActionRejected  HistoryAction = "REJECTED"
)

// BudgetRequestApprovalHistory rows are insert-only.
type BudgetRequestApprovalHistory struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	BudgetRequestID uint                `gorm:"index;not null" json:"budget_request_id"`
	FromStatus      RequestStatus       `gorm:"size:20" json:"from_status"`
	ToStatus        RequestStatus       `gorm:"size:20;not null" json:"to_status"`
	Action          HistoryAction       `gorm:"size:20;not null" json:"action"`
	ActorID         uint                `json:"actor_id"`
	ActorName       string              `gorm:"size:100" json:"actor_name"`
	Comment         string              `gorm:"type:text" json:"comment"`
	AmountBefore    decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"amount_before"`
	AmountAfter     decimal.NullDecimal `gorm:"type:numeric(15,2)" json:"amount_after"`
	CreatedAt       time.Time           `gorm:"index" json:"created_at"`
}

func (BudgetRequestApprovalHistory) TableName() string {
	return "budget_request_approval_history"
}

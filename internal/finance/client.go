package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budget-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrFinanceDisabled = errors.New("finance api url not configured")

// Snapshot is the Finance system's view of one department budget.
type Snapshot struct {
	ID              int64           `json:"id"`
	AllocatedAmount decimal.Decimal `json:"allocatedAmount"`
	UsedAmount      decimal.Decimal `json:"usedAmount"`
	ReservedAmount  decimal.Decimal `json:"reservedAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	PeriodStart     time.Time       `json:"periodStart"`
	PeriodEnd       time.Time       `json:"periodEnd"`
}

type Reservation struct {
	BudgetRequestID uint              `json:"budgetRequestId"`
	Department      models.Department `json:"department"`
	FiscalYear      int               `json:"fiscalYear"`
	FiscalPeriod    string            `json:"fiscalPeriod"`
	Amount          decimal.Decimal   `json:"amount"`
	RequestCode     string            `json:"requestCode"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	IdempotencyKey  string            `json:"idempotencyKey"`
}

// StatusError is a non-2xx answer from Finance.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("finance %s: status %d: %s", e.Op, e.Status, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// IdempotencyKey is deterministic for (entity, action, id) so redelivery of
// the same reservation is safe.
func IdempotencyKey(entity, action string, id uint) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%s:%d", entity, action, id))).String()
}

func (c *Client) GetDepartmentBudget(ctx context.Context, dept models.Department, year int, period string) (*Snapshot, error) {
	if c.baseURL == "" {
		return nil, ErrFinanceDisabled
	}

	q := url.Values{}
	q.Set("fiscal_year", strconv.Itoa(year))
	q.Set("fiscal_period", period)
	endpoint := fmt.Sprintf("%s/api/v1/budgets/%s?%s", c.baseURL, url.PathEscape(string(dept)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finance get budget: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Op: "get budget", Status: resp.StatusCode, Body: string(body)}
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("finance get budget: decode: %w", err)
	}
	return &snap, nil
}

func (c *Client) NotifyReservation(ctx context.Context, r Reservation) error {
	if c.baseURL == "" {
		return ErrFinanceDisabled
	}

	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/reservations", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", r.IdempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("finance notify reservation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Op: "notify reservation", Status: resp.StatusCode, Body: string(b)}
	}
	return nil
}

package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"budget-backend/internal/cache"
	"budget-backend/internal/metrics"
	"budget-backend/internal/models"
	"budget-backend/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeSource implements BudgetSource for testing.
type fakeSource struct {
	GetFunc func(ctx context.Context, dept models.Department, year int, period string) (*Snapshot, error)
	calls   int
}

func (f *fakeSource) GetDepartmentBudget(ctx context.Context, dept models.Department, year int, period string) (*Snapshot, error) {
	f.calls++
	return f.GetFunc(ctx, dept, year, period)
}

var errOutage = errors.New("connection refused")

func down() *fakeSource {
	return &fakeSource{GetFunc: func(context.Context, models.Department, int, string) (*Snapshot, error) {
		return nil, errOutage
	}}
}

func up(remaining int64) *fakeSource {
	return &fakeSource{GetFunc: func(_ context.Context, _ models.Department, year int, period string) (*Snapshot, error) {
		start, end, _ := PeriodBounds(year, period)
		return &Snapshot{
			ID:              501,
			AllocatedAmount: decimal.NewFromInt(20000),
			UsedAmount:      decimal.NewFromInt(20000 - remaining),
			ReservedAmount:  decimal.Zero,
			RemainingAmount: decimal.NewFromInt(remaining),
			PeriodStart:     start,
			PeriodEnd:       end,
		}, nil
	}}
}

func newTestMirror(t *testing.T, src BudgetSource) (*Mirror, *cache.Memory) {
	t.Helper()
	db := testutil.NewDB(t)
	c := cache.NewMemory()
	m := NewMirror(db, src, c, MirrorOptions{
		SyntheticAllocation: decimal.NewFromInt(10_000_000),
		CacheTTL:            time.Minute,
	}, zap.NewNop())
	return m, c
}

func TestSyncLiveUpsertsAndCaches(t *testing.T) {
	ctx := context.Background()
	src := up(8000)
	m, _ := newTestMirror(t, src)

	got, err := m.SyncDepartmentBudget(ctx, models.DepartmentOperations, 2026, "Q4")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got.BudgetID != 501 || !got.RemainingAmount.Equal(decimal.NewFromInt(8000)) {
		t.Fatalf("got budget %d remaining %s", got.BudgetID, got.RemainingAmount)
	}
	if got.IsStale || got.IsSynthetic {
		t.Errorf("live row flagged stale=%v synthetic=%v", got.IsStale, got.IsSynthetic)
	}

	if _, err := m.SyncDepartmentBudget(ctx, models.DepartmentOperations, 2026, "Q4"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("finance called %d times, want 1 (second lookup should hit cache)", src.calls)
	}
}

func TestSyncFallsBackToStaleRow(t *testing.T) {
	ctx := context.Background()
	m, c := newTestMirror(t, up(8000))

	if _, err := m.SyncDepartmentBudget(ctx, models.DepartmentHR, 2026, "Q1"); err != nil {
		t.Fatal(err)
	}

	m.source = down()
	_ = c.DeletePrefix(ctx, cache.BudgetPrefix)

	got, err := m.SyncDepartmentBudget(ctx, models.DepartmentHR, 2026, "Q1")
	if err != nil {
		t.Fatalf("sync during outage: %v", err)
	}
	if !got.IsStale || got.IsSynthetic {
		t.Errorf("stale=%v synthetic=%v, want stale real row", got.IsStale, got.IsSynthetic)
	}
	if got.BudgetID != 501 || !got.RemainingAmount.Equal(decimal.NewFromInt(8000)) {
		t.Errorf("fallback returned %d/%s", got.BudgetID, got.RemainingAmount)
	}

	var stored models.CachedDepartmentBudget
	if err := m.db.First(&stored, got.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !stored.IsStale {
		t.Error("persisted row not marked stale")
	}
}

func TestSyncSyntheticIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMirror(t, down())

	first, err := m.SyncDepartmentBudget(ctx, models.DepartmentInventory, 2026, "Q2")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := m.SyncDepartmentBudget(ctx, models.DepartmentInventory, 2026, "Q2")
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if first.BudgetID >= 0 {
		t.Errorf("synthetic id %d is not negative", first.BudgetID)
	}
	if first.BudgetID != second.BudgetID {
		t.Errorf("synthetic ids differ: %d vs %d", first.BudgetID, second.BudgetID)
	}
	if !second.IsStale || !second.IsSynthetic {
		t.Errorf("stale=%v synthetic=%v", second.IsStale, second.IsSynthetic)
	}
	if !second.RemainingAmount.Equal(decimal.NewFromInt(10_000_000)) {
		t.Errorf("remaining = %s", second.RemainingAmount)
	}

	var count int64
	m.db.Model(&models.CachedDepartmentBudget{}).Count(&count)
	if count != 1 {
		t.Errorf("%d cached rows, want 1", count)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestSyntheticInsertYieldsToConcurrentRow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMirror(t, down())
	fallbacks := metrics.SyntheticFallbackTotal.WithLabelValues(string(models.DepartmentHR))

	start, end, _ := PeriodBounds(2026, "Q3")
	live := models.CachedDepartmentBudget{
		BudgetID:        777,
		Department:      models.DepartmentHR,
		FiscalYear:      2026,
		FiscalPeriod:    "Q3",
		AllocatedAmount: decimal.NewFromInt(5000),
		UsedAmount:      decimal.Zero,
		ReservedAmount:  decimal.Zero,
		RemainingAmount: decimal.NewFromInt(5000),
		PeriodStart:     start,
		PeriodEnd:       end,
	}
	if err := m.db.Create(&live).Error; err != nil {
		t.Fatal(err)
	}

	before := counterValue(t, fallbacks)
	created, err := m.persistSynthetic(ctx, models.DepartmentHR, 2026, "Q3")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("synthetic row reported as created over an existing row")
	}
	if got := counterValue(t, fallbacks); got != before {
		t.Errorf("fallback counter moved from %v to %v", before, got)
	}

	row, err := m.load(ctx, models.DepartmentHR, 2026, "Q3")
	if err != nil {
		t.Fatal(err)
	}
	if row.BudgetID != 777 || row.IsSynthetic {
		t.Errorf("kept row = %d synthetic=%v, want the live row", row.BudgetID, row.IsSynthetic)
	}

	created, err = m.persistSynthetic(ctx, models.DepartmentHR, 2026, "Q4")
	if err != nil || !created {
		t.Fatalf("fresh triple: created=%v err=%v", created, err)
	}
	if got := counterValue(t, fallbacks); got != before+1 {
		t.Errorf("fallback counter = %v, want %v", got, before+1)
	}
}

func TestSyncRecoversFromSynthetic(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMirror(t, down())

	if _, err := m.SyncDepartmentBudget(ctx, models.DepartmentSales, 2026, "FY"); err != nil {
		t.Fatal(err)
	}

	m.source = up(1234)
	got, err := m.SyncDepartmentBudget(ctx, models.DepartmentSales, 2026, "FY")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsSynthetic || got.IsStale || got.BudgetID != 501 {
		t.Errorf("got %+v, want live row", got)
	}
}

func TestSyntheticBudgetID(t *testing.T) {
	a := SyntheticBudgetID(models.DepartmentFinance, 2026, "Q1")
	b := SyntheticBudgetID(models.DepartmentHR, 2026, "Q1")
	c := SyntheticBudgetID(models.DepartmentFinance, 2026, "Q2")
	if a == b || a == c || b == c {
		t.Errorf("ids collide: %d %d %d", a, b, c)
	}
	if a != -20260101 {
		t.Errorf("a = %d", a)
	}
}

func TestPeriodBounds(t *testing.T) {
	tests := []struct {
		period     string
		start, end string
	}{
		{"Q1", "2026-01-01", "2026-03-31"},
		{"Q4", "2026-10-01", "2026-12-31"},
		{"H2", "2026-07-01", "2026-12-31"},
		{"FY", "2026-01-01", "2026-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			s, e, err := PeriodBounds(2026, tt.period)
			if err != nil {
				t.Fatal(err)
			}
			if s.Format("2006-01-02") != tt.start || e.Format("2006-01-02") != tt.end {
				t.Errorf("bounds = %s..%s", s.Format("2006-01-02"), e.Format("2006-01-02"))
			}
		})
	}

	if _, _, err := PeriodBounds(2026, "Q5"); err == nil {
		t.Error("expected error for Q5")
	}
}

func TestCurrentPeriod(t *testing.T) {
	y, p := CurrentPeriod(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	if y != 2026 || p != "Q4" {
		t.Errorf("CurrentPeriod = %d %s", y, p)
	}
}

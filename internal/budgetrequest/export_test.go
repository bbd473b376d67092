package budgetrequest

import (
	"bytes"
	"testing"
	"time"

	"budget-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSXKeepsMoneyExact(t *testing.T) {
	rows := []models.BudgetRequest{
		{
			RequestCode:      "BR-20261014-0000000A",
			Title:            "Servers",
			Department:       models.DepartmentIT,
			FiscalYear:       2026,
			FiscalPeriod:     "Q4",
			Status:           models.StatusApproved,
			AmountRequested:  dec("1234567890123.45"),
			BufferPercentage: dec("7.5"),
			ReservedAmount:   decimal.NewNullDecimal(dec("1327160481882.71")),
			BudgetShortfall:  dec("0.1"),
			CreatedAt:        time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC),
		},
		{
			RequestCode:     "BR-20261014-0000000B",
			Title:           "Chairs",
			Status:          models.StatusDraft,
			AmountRequested: dec("80"),
		},
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rows); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(got))
	}

	tests := []struct {
		row, col int
		want     string
	}{
		{1, 7, "1234567890123.45"},
		{1, 8, "7.50"},
		{1, 9, "1327160481882.71"},
		{1, 10, "0.10"},
		{2, 7, "80.00"},
		{2, 10, "0.00"},
	}
	for _, tt := range tests {
		if cell := got[tt.row][tt.col]; cell != tt.want {
			t.Errorf("%s at row %d = %q, want %q", exportHeaders[tt.col], tt.row, cell, tt.want)
		}
	}
	if len(got[2]) > 9 && got[2][9] != "" {
		t.Errorf("unreserved row shows reserved %q", got[2][9])
	}
}

package budgetrequest

import (
	"fmt"
	"io"

	"budget-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Budget Requests"

var exportHeaders = []string{
	"Code", "Title", "Department", "Fiscal Year", "Period", "Priority", "Status",
	"Requested", "Buffer %", "Reserved", "Shortfall", "Budget Stale", "Created By", "Created At",
}

// WriteXLSX renders rows as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []models.BudgetRequest) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, header)
	}

	for i, r := range rows {
		reserved := ""
		if r.ReservedAmount.Valid {
			reserved = r.ReservedAmount.Decimal.StringFixed(2)
		}
		values := []any{
			r.RequestCode,
			r.Title,
			string(r.Department),
			r.FiscalYear,
			r.FiscalPeriod,
			string(r.Priority),
			string(r.Status),
			r.AmountRequested.StringFixed(2),
			r.BufferPercentage.StringFixed(2),
			reserved,
			r.BudgetShortfall.StringFixed(2),
			r.BudgetIsStale,
			r.CreatedByName,
			r.CreatedAt.Format("2006-01-02 15:04"),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return err
		}
	}

	return f.Write(w)
}

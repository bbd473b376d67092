package finance

import (
	"fmt"
	"strings"
	"time"

	"budget-backend/internal/models"
)

var periodIndex = map[string]int{
	"Q1": 1, "Q2": 2, "Q3": 3, "Q4": 4,
	"H1": 5, "H2": 6,
	"FY": 7,
}

func ParsePeriod(s string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := periodIndex[p]; !ok {
		return "", fmt.Errorf("unknown fiscal period %q", s)
	}
	return p, nil
}

// CurrentPeriod is the calendar quarter containing t.
func CurrentPeriod(t time.Time) (int, string) {
	q := (int(t.Month())-1)/3 + 1
	return t.Year(), fmt.Sprintf("Q%d", q)
}

// PeriodBounds returns the first instant of the period and the last instant
// before the next one, in UTC.
func PeriodBounds(year int, period string) (time.Time, time.Time, error) {
	var startMonth, months int
	switch period {
	case "Q1", "Q2", "Q3", "Q4":
		startMonth, months = (periodIndex[period]-1)*3+1, 3
	case "H1":
		startMonth, months = 1, 6
	case "H2":
		startMonth, months = 7, 6
	case "FY":
		startMonth, months = 1, 12
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown fiscal period %q", period)
	}
	start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, months, 0).Add(-time.Nanosecond)
	return start, end, nil
}

// SyntheticBudgetID is a stable negative id for a fabricated budget row, so
// repeated fallbacks for the same key never produce a second id and never
// collide with Finance's positive ids.
func SyntheticBudgetID(dept models.Department, year int, period string) int64 {
	return -(int64(year)*10000 + int64(periodIndex[period])*100 + int64(dept.Index()))
}

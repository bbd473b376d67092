package finance

import (
	"errors"
	"time"

	"budget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GET /api/budgets/:department?fiscal_year=2026&fiscal_period=Q4
func DepartmentBudgetHandler(m *Mirror) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dept, err := models.ParseDepartment(c.Params("department"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		year, period := CurrentPeriod(time.Now())
		year = c.QueryInt("fiscal_year", year)
		if raw := c.Query("fiscal_period"); raw != "" {
			if period, err = ParsePeriod(raw); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}

		row, err := m.SyncDepartmentBudget(c.UserContext(), dept, year, period)
		if errors.Is(err, ErrBudgetUnavailable) {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		if err != nil {
			return err
		}
		return c.JSON(row)
	}
}

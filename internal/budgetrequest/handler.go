package budgetrequest

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"budget-backend/internal/auth"
	"budget-backend/internal/finance"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler struct {
	engine *Engine
	log    *zap.Logger
}

func NewHandler(engine *Engine, log *zap.Logger) *Handler {
	return &Handler{engine: engine, log: log}
}

// Register mounts the budget request routes on an authenticated router.
func (h *Handler) Register(r fiber.Router) {
	g := r.Group("/budget-requests")
	g.Get("/", h.List())
	g.Post("/", h.Create())
	g.Get("/analytics", h.Analytics())
	g.Get("/export", h.Export())
	g.Get("/:id", h.Get())
	g.Delete("/:id", h.Delete())
	g.Post("/:id/submit", h.Submit())
	g.Post("/:id/approve", h.Approve())
	g.Post("/:id/reject", h.Reject())
}

func actorFrom(c *fiber.Ctx) (Actor, error) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		return Actor{}, fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
	}
	return Actor{
		ID:         claims.UserID,
		Name:       claims.Name,
		Email:      claims.Email,
		Role:       claims.Role,
		Department: claims.Department,
	}, nil
}

func idParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid budget request id")
	}
	return uint(id), nil
}

// httpError maps domain errors onto fiber errors. Anything unknown is passed
// through for the server's error handler.
func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, finance.ErrBudgetUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "department budget unavailable, try again later")
	}
	return err
}

func (h *Handler) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		in, err := NormalizeCreate(c.Body())
		if err != nil {
			return httpError(err)
		}
		req, err := h.engine.Create(c.UserContext(), in, actor)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	}
}

func (h *Handler) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		req, err := h.engine.Get(c.UserContext(), id, actor)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(req)
	}
}

func (h *Handler) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		f, err := parseFilter(c)
		if err != nil {
			return err
		}
		res, err := h.engine.Store().List(c.UserContext(), f, actor)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	}
}

func (h *Handler) Export() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		f, err := parseFilter(c)
		if err != nil {
			return err
		}
		rows, err := h.engine.Store().ListAll(c.UserContext(), f, actor)
		if err != nil {
			return httpError(err)
		}

		var buf bytes.Buffer
		if err := WriteXLSX(&buf, rows); err != nil {
			h.log.Error("xlsx export failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "could not build export")
		}
		fileName := fmt.Sprintf("budget_requests_%s.xlsx", time.Now().Format("20060102_150405"))
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, "attachment; filename="+fileName)
		return c.Send(buf.Bytes())
	}
}

func (h *Handler) Analytics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		if !actor.SeesAll() {
			return fiber.NewError(fiber.StatusForbidden, "analytics are limited to finance reviewers")
		}
		year := c.QueryInt("fiscal_year", time.Now().Year())
		out, err := h.engine.Store().Analytics(c.UserContext(), year)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(out)
	}
}

func (h *Handler) Delete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := h.engine.Delete(c.UserContext(), id, actor); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (h *Handler) Submit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		req, err := h.engine.Submit(c.UserContext(), id, actor)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(req)
	}
}

func (h *Handler) Approve() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		in, err := NormalizeApprove(c.Body())
		if err != nil {
			return httpError(err)
		}
		req, err := h.engine.Approve(c.UserContext(), id, in, actor)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(req)
	}
}

func (h *Handler) Reject() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		in, err := NormalizeReject(c.Body())
		if err != nil {
			return httpError(err)
		}
		req, err := h.engine.Reject(c.UserContext(), id, in, actor)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(req)
	}
}

func parseFilter(c *fiber.Ctx) (ListFilter, error) {
	f := ListFilter{
		Status:     c.Query("status"),
		Department: c.Query("department"),
		Priority:   c.Query("priority"),
		Search:     c.Query("search"),
		Page:       c.QueryInt("page", 1),
		Limit:      c.QueryInt("limit", 20),
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
		end  bool
	}{
		{"created_from", &f.CreatedFrom, false},
		{"created_to", &f.CreatedTo, true},
	} {
		raw := strings.TrimSpace(c.Query(q.name))
		if raw == "" {
			continue
		}
		t, err := parseTime(raw, q.end)
		if err != nil {
			return f, fiber.NewError(fiber.StatusBadRequest, q.name+" must be RFC3339 or YYYY-MM-DD")
		}
		*q.dst = &t
	}
	return f, nil
}

// parseTime accepts RFC3339 or a bare date. A bare end date covers the whole
// day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

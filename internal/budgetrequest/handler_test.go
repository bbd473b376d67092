package budgetrequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"budget-backend/internal/auth"
	"budget-backend/internal/finance"
	"budget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const handlerSecret = "handler-test-secret-handler-test-secret"

func newTestServer(t *testing.T, budgets BudgetResolver) (*fiber.App, *fixture) {
	t.Helper()
	f := newFixture(t, budgets)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{"error": e.Message})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unexpected server error"})
		},
	})
	api := app.Group("/api", auth.JWTMiddleware(handlerSecret))
	NewHandler(f.engine, zap.NewNop()).Register(api)
	return app, f
}

func tokenFor(t *testing.T, a Actor) string {
	t.Helper()
	tok, err := auth.GenerateToken(handlerSecret, &models.User{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role, Department: a.Department})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func call(t *testing.T, app *fiber.App, method, path string, a Actor, body string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, a))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, raw
}

func TestHandlerLifecycle(t *testing.T) {
	app, f := newTestServer(t, remaining(8000))

	resp, raw := call(t, app, http.MethodPost, "/api/budget-requests", f.requester,
		`{"title":"Forklift","amountRequested":"10000","fiscalYear":2026,"fiscalPeriod":"Q4"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, raw)
	}
	var created models.BudgetRequest
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatal(err)
	}
	if !created.BudgetShortfall.Equal(dec("2000")) || created.Status != models.StatusDraft {
		t.Errorf("created = %+v", created)
	}
	base := "/api/budget-requests/" + strconv.FormatUint(uint64(created.ID), 10)

	if resp, _ := call(t, app, http.MethodPost, base+"/approve", f.reviewer, `{}`); resp.StatusCode != fiber.StatusConflict {
		t.Errorf("approve draft status = %d, want 409", resp.StatusCode)
	}
	if resp, _ := call(t, app, http.MethodPost, base+"/submit", f.outsider, ``); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("outsider submit status = %d, want 403", resp.StatusCode)
	}
	if resp, _ := call(t, app, http.MethodPost, base+"/submit", f.requester, ``); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	if resp, _ := call(t, app, http.MethodPost, base+"/approve", f.requester, `{}`); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("requester approve status = %d, want 403", resp.StatusCode)
	}
	if resp, _ := call(t, app, http.MethodPost, base+"/approve", f.reviewer, `{"buffer_percentage":150}`); resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("buffer 150 status = %d, want 400", resp.StatusCode)
	}

	resp, raw = call(t, app, http.MethodPost, base+"/approve", f.reviewer, `{"bufferPercentage":10,"reviewNotes":"go"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("approve status = %d: %s", resp.StatusCode, raw)
	}
	var approved models.BudgetRequest
	json.Unmarshal(raw, &approved)
	if approved.Status != models.StatusApproved || !approved.ReservedAmount.Decimal.Equal(dec("11000")) {
		t.Errorf("approved = %+v", approved)
	}

	if resp, _ := call(t, app, http.MethodPost, base+"/reject", f.reviewer, `{"review_notes":"late"}`); resp.StatusCode != fiber.StatusConflict {
		t.Errorf("reject approved status = %d, want 409", resp.StatusCode)
	}

	if resp, _ := call(t, app, http.MethodGet, base, f.outsider, ""); resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("outsider get status = %d, want 404", resp.StatusCode)
	}
	if resp, _ := call(t, app, http.MethodGet, base, f.requester, ""); resp.StatusCode != fiber.StatusOK {
		t.Errorf("requester get status = %d", resp.StatusCode)
	}
}

func TestHandlerErrors(t *testing.T) {
	app, f := newTestServer(t, remaining(8000))

	tests := []struct {
		name   string
		method string
		path   string
		actor  Actor
		body   string
		want   int
	}{
		{"invalid id", http.MethodGet, "/api/budget-requests/abc", f.requester, "", fiber.StatusBadRequest},
		{"missing", http.MethodGet, "/api/budget-requests/404", f.root, "", fiber.StatusNotFound},
		{"bad body", http.MethodPost, "/api/budget-requests", f.requester, `not json`, fiber.StatusBadRequest},
		{"no title", http.MethodPost, "/api/budget-requests", f.requester, `{"amount":5}`, fiber.StatusBadRequest},
		{"analytics needs reviewer", http.MethodGet, "/api/budget-requests/analytics", f.requester, "", fiber.StatusForbidden},
		{"analytics reviewer", http.MethodGet, "/api/budget-requests/analytics?fiscal_year=2026", f.reviewer, "", fiber.StatusOK},
		{"bad date filter", http.MethodGet, "/api/budget-requests?created_from=yesterday", f.root, "", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := call(t, app, tt.method, tt.path, tt.actor, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.want, raw)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/budget-requests", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}
}

func TestHandlerBudgetUnavailable(t *testing.T) {
	app, f := newTestServer(t, &fakeBudgets{SyncFunc: func(context.Context, models.Department, int, string) (*models.CachedDepartmentBudget, error) {
		return nil, fmt.Errorf("sync: %w", finance.ErrBudgetUnavailable)
	}})
	resp, raw := call(t, app, http.MethodPost, "/api/budget-requests", f.requester, `{"title":"x","amount":5}`)
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503: %s", resp.StatusCode, raw)
	}
}

func TestHandlerListAndExport(t *testing.T) {
	app, f := newTestServer(t, remaining(1_000_000))
	f.create(t, 100, false)
	f.create(t, 200, true)

	resp, raw := call(t, app, http.MethodGet, "/api/budget-requests?status=SUBMITTED&limit=5", f.requester, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list ListResult
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Limit != 5 || list.Page != 1 {
		t.Errorf("list = total %d page %d limit %d", list.Total, list.Page, list.Limit)
	}

	resp, raw = call(t, app, http.MethodGet, "/api/budget-requests/export", f.root, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content type = %q", ct)
	}
	if len(raw) < 4 || string(raw[:2]) != "PK" {
		t.Error("export is not a zip container")
	}
}

func TestHandlerDelete(t *testing.T) {
	app, f := newTestServer(t, remaining(8000))
	draft := f.create(t, 100, false)
	path := "/api/budget-requests/" + strconv.FormatUint(uint64(draft.ID), 10)

	if resp, _ := call(t, app, http.MethodDelete, path, f.requester, ""); resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp, _ := call(t, app, http.MethodGet, path, f.requester, ""); resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

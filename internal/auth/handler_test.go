package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budget-backend/internal/models"
	"budget-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

func newTestApp(t *testing.T) (*fiber.App, *Handler) {
	t.Helper()
	db := testutil.NewDB(t)
	h := NewHandler(db, testSecret, zap.NewNop())
	h.cost = bcrypt.MinCost

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	api := app.Group("/api")
	api.Post("/auth/register-super-admin", h.RegisterSuperAdmin())
	api.Post("/auth/login", h.Login())
	protected := api.Group("", JWTMiddleware(testSecret))
	protected.Get("/auth/me", h.Me())
	admin := protected.Group("/admin", RequireRole(models.RoleSuperAdmin))
	admin.Post("/users", h.CreateUser())
	admin.Get("/users", h.ListUsers())
	return app, h
}

func do(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestRegisterLoginMe(t *testing.T) {
	app, _ := newTestApp(t)

	code, _ := do(t, app, http.MethodPost, "/api/auth/register-super-admin", "",
		`{"name":"Root","email":"Root@Example.com","password":"password1"}`)
	if code != fiber.StatusCreated {
		t.Fatalf("register status = %d", code)
	}

	code, _ = do(t, app, http.MethodPost, "/api/auth/register-super-admin", "",
		`{"name":"Other","email":"other@example.com","password":"password1"}`)
	if code != fiber.StatusForbidden {
		t.Errorf("second super admin status = %d, want 403", code)
	}

	code, body := do(t, app, http.MethodPost, "/api/auth/login", "", `{"email":"root@example.com","password":"password1"}`)
	if code != fiber.StatusOK {
		t.Fatalf("login status = %d", code)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}

	code, me := do(t, app, http.MethodGet, "/api/auth/me", token, "")
	if code != fiber.StatusOK || me["role"] != string(models.RoleSuperAdmin) || me["department"] != string(models.DepartmentFinance) {
		t.Errorf("me = %d %v", code, me)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	app, h := newTestApp(t)
	testutil.CreateUser(t, h.db, "Ana Lyst", models.RoleUser, models.DepartmentSales)

	code, _ := do(t, app, http.MethodPost, "/api/auth/login", "", `{"email":"ana.lyst@example.com","password":"nope"}`)
	if code != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}

	forged, err := GenerateToken("another-secret-another-secret-12345", &models.User{ID: 1, Role: models.RoleSuperAdmin})
	if err != nil {
		t.Fatal(err)
	}
	if code, _ := do(t, app, http.MethodGet, "/api/auth/me", forged, ""); code != fiber.StatusUnauthorized {
		t.Errorf("forged token status = %d", code)
	}
}

func TestAdminUsers(t *testing.T) {
	app, h := newTestApp(t)
	root := testutil.CreateUser(t, h.db, "Root", models.RoleSuperAdmin, models.DepartmentFinance)
	plain := testutil.CreateUser(t, h.db, "Plain", models.RoleUser, models.DepartmentHR)

	rootToken, _ := GenerateToken(testSecret, &root)
	plainToken, _ := GenerateToken(testSecret, &plain)

	code, _ := do(t, app, http.MethodPost, "/api/admin/users", plainToken,
		`{"name":"X","email":"x@example.com","password":"password1","role":"admin","department":"hr"}`)
	if code != fiber.StatusForbidden {
		t.Errorf("non-admin create status = %d, want 403", code)
	}

	code, _ = do(t, app, http.MethodPost, "/api/admin/users", rootToken,
		`{"name":"Ops Lead","email":"ops@example.com","password":"password1","role":"admin","department":"Operations"}`)
	if code != fiber.StatusCreated {
		t.Fatalf("create status = %d", code)
	}

	code, _ = do(t, app, http.MethodPost, "/api/admin/users", rootToken,
		`{"name":"Dup","email":"ops@example.com","password":"password1","role":"user","department":"operations"}`)
	if code != fiber.StatusConflict {
		t.Errorf("duplicate email status = %d, want 409", code)
	}

	code, _ = do(t, app, http.MethodPost, "/api/admin/users", rootToken,
		`{"name":"Bad","email":"bad@example.com","password":"password1","role":"user","department":"marketing"}`)
	if code != fiber.StatusBadRequest {
		t.Errorf("unknown department status = %d, want 400", code)
	}

	var u models.User
	if err := h.db.Where("email = ?", "ops@example.com").First(&u).Error; err != nil {
		t.Fatal(err)
	}
	if u.Department != models.DepartmentOperations || u.Role != models.RoleAdmin {
		t.Errorf("stored user = %+v", u)
	}
}

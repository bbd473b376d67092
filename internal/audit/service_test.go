package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"budget-backend/internal/models"
	"budget-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func sampleOptions() LogOptions {
	return LogOptions{
		UserID:       7,
		UserName:     "Fin Admin",
		UserRole:     models.RoleAdmin,
		ResourceType: "budget_request",
		ResourceID:   42,
		Action:       models.AuditActionApprove,
		Description:  "approved BR-20261014-ABCDEF12",
		After:        map[string]any{"status": "APPROVED"},
	}
}

func TestRecordPostsToService(t *testing.T) {
	var got event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/audit-logs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	db := testutil.NewDB(t)
	c := NewClient(srv.URL, "budget-service", time.Second, db, zap.NewNop())
	if err := c.Record(context.Background(), sampleOptions()); err != nil {
		t.Fatal(err)
	}

	if got.Service != "budget-service" || got.Action != models.AuditActionApprove || got.ResourceID != 42 || got.Username != "Fin Admin" {
		t.Errorf("event = %+v", got)
	}
	var n int64
	db.Model(&models.AuditLog{}).Count(&n)
	if n != 0 {
		t.Errorf("local rows = %d, want 0 after successful delivery", n)
	}
}

func TestRecordFallsBackLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	db := testutil.NewDB(t)
	c := NewClient(srv.URL, "budget-service", time.Second, db, zap.NewNop())
	if err := c.Record(context.Background(), sampleOptions()); err != nil {
		t.Fatalf("Record() = %v, want nil on fallback", err)
	}

	var row models.AuditLog
	if err := db.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if row.ResourceID != 42 || row.Action != models.AuditActionApprove || row.DeliveryError == "" {
		t.Errorf("row = %+v", row)
	}
	if row.BeforeData != "null" || row.AfterData != `{"status":"APPROVED"}` {
		t.Errorf("before = %q after = %q", row.BeforeData, row.AfterData)
	}
}

func TestRecordWithoutURL(t *testing.T) {
	db := testutil.NewDB(t)
	c := NewClient("", "budget-service", time.Second, db, zap.NewNop())
	if err := c.Record(context.Background(), sampleOptions()); err != nil {
		t.Fatal(err)
	}
	var row models.AuditLog
	if err := db.First(&row).Error; err != nil {
		t.Fatal(err)
	}
	if row.DeliveryError != "" {
		t.Errorf("delivery error = %q, want empty when no service is configured", row.DeliveryError)
	}
}

func TestListAuditLogsHandler(t *testing.T) {
	db := testutil.NewDB(t)
	c := NewClient("", "budget-service", time.Second, db, zap.NewNop())
	ctx := context.Background()

	opts := sampleOptions()
	c.Record(ctx, opts)
	opts.ResourceID = 43
	opts.Action = models.AuditActionReject
	c.Record(ctx, opts)

	app := fiber.New()
	app.Get("/audit-logs", ListAuditLogsHandler(db))

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?resource_id=43", 1},
		{"?action=approve", 1},
		{"?resource_type=user", 0},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/audit-logs"+tt.query, nil), -1)
		if err != nil {
			t.Fatal(err)
		}
		var out []AuditLogResponse
		json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if len(out) != tt.want {
			t.Errorf("%q: got %d rows, want %d", tt.query, len(out), tt.want)
		}
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"budget-backend/internal/config"

	"go.uber.org/zap"
)

func TestFileCoreWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	core, err := fileCore(path, zap.NewProductionEncoderConfig())
	if err != nil {
		t.Fatal(err)
	}
	log := zap.New(core)
	log.Info("budget synced", zap.String("department", "hr"))
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"department":"hr"`) {
		t.Errorf("log file = %s", raw)
	}
}

func TestFileCoreReportsUnusablePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := fileCore(filepath.Join(blocker, "app.log"), zap.NewProductionEncoderConfig()); err == nil {
		t.Fatal("fileCore accepted a path under a regular file")
	}

	// New still returns a working stdout logger.
	log := New(&config.Config{Environment: "production", ServiceName: "test", LogFile: filepath.Join(blocker, "app.log")})
	if log == nil {
		t.Fatal("New returned nil")
	}
}

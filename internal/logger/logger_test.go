package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "angelsharkd.log")
	if err := Init("info", path, "test"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	Log.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("log file missing message: %q", data)
	}
	if !strings.Contains(string(data), "component=test") {
		t.Fatalf("log file missing component attribute: %q", data)
	}
}

func TestInitRejectsUnwritableLogFile(t *testing.T) {
	if err := Init("info", filepath.Join(t.TempDir(), "missing-dir", "x.log"), "test"); err == nil {
		t.Fatalf("want error for unwritable log file path")
	}
}

func TestInitDefaultsUnknownLevelToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	if err := Init("bogus-level", path, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !Log.Enabled(context.Background(), 0) { // slog.LevelInfo == 0
		t.Fatalf("expected info level to be enabled")
	}
}

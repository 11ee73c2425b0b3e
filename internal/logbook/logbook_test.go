package logbook

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}

	book.Info("run %s started", "house-prices-abc123")
	book.Warn("history unavailable")
	book.Error("stage %s failed", "repair")

	lines := book.Tail(10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "INFO") || !strings.Contains(lines[0], "house-prices-abc123") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[2], "ERROR") {
		t.Fatalf("unexpected last line %q", lines[2])
	}

	lines = book.Tail(2)
	if len(lines) != 2 || !strings.Contains(lines[0], "WARN") {
		t.Fatalf("expected tail to keep the most recent lines, got %v", lines)
	}
}

func TestStageLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}

	stage := book.Stage("impute")
	stage.Info("filled %d cells", 42)

	lines := book.Tail(1)
	if len(lines) != 1 || !strings.Contains(lines[0], "[impute] filled 42 cells") {
		t.Fatalf("expected stage prefix, got %v", lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "run.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	if lines := book.Tail(5); lines != nil {
		t.Fatalf("expected nil for missing file, got %v", lines)
	}
}

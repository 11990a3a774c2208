package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestContextEmptyWorkspace(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Context(); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestContextIncludesLongTermMemory(t *testing.T) {
	ws := t.TempDir()
	s, _ := NewStore(ws)
	if err := os.WriteFile(s.MemoryPath(), []byte("user likes tea\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := s.Context()
	if !strings.Contains(got, "user likes tea") {
		t.Errorf("long-term memory missing: %q", got)
	}
}

func TestAppendDailyNote(t *testing.T) {
	ws := t.TempDir()
	s, _ := NewStore(ws)
	if err := s.AppendDailyNote("met the deadline"); err != nil {
		t.Fatalf("append: %v", err)
	}

	now := time.Now()
	path := filepath.Join(ws, "memory", now.Format("200601"), now.Format("20060102")+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("daily note missing: %v", err)
	}
	if !strings.Contains(string(data), "met the deadline") {
		t.Errorf("note content missing: %q", data)
	}

	// Today's note shows up in the context.
	if !strings.Contains(s.Context(), "met the deadline") {
		t.Error("daily note missing from context")
	}
}

package logrouter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendOpensFirstSession(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "flight")
	defer r.Close()

	if err := r.AppendEvent(1500, "mark", "takeoff", 42); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "flight.0.log"))
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	line := strings.TrimSpace(string(data))
	if line != "1500 mark 42 takeoff" {
		t.Errorf("event line = %q", line)
	}
}

func TestRotateAdvancesIndex(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, "flight")
	defer r.Close()

	if err := r.AppendEvent(1, "a", "first", 0); err != nil {
		t.Fatal(err)
	}
	name, err := r.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if name != "flight.1.log" {
		t.Errorf("rotated to %q, want flight.1.log", name)
	}
	if err := r.AppendEvent(2, "b", "second", 0); err != nil {
		t.Fatal(err)
	}

	// Events land in their own sessions.
	first, _ := os.ReadFile(filepath.Join(dir, "flight.0.log"))
	second, _ := os.ReadFile(filepath.Join(dir, "flight.1.log"))
	if !strings.Contains(string(first), "first") || strings.Contains(string(first), "second") {
		t.Errorf("flight.0.log contents: %q", first)
	}
	if !strings.Contains(string(second), "second") {
		t.Errorf("flight.1.log contents: %q", second)
	}
	if r.Index() != 1 {
		t.Errorf("index = %d, want 1", r.Index())
	}
}

func TestAppendToBadDirReturnsError(t *testing.T) {
	r := New("/nonexistent/path", "flight")
	if err := r.AppendEvent(1, "a", "x", 0); err == nil {
		t.Error("append to missing dir succeeded")
	}
}

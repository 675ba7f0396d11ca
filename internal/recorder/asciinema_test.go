package recorder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLines(t *testing.T, buf *bytes.Buffer) [][]byte {
	t.Helper()
	var lines [][]byte
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	return lines
}

func TestRecorder_Header(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWithWriter(&buf, 80, 24)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	lines := readLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected only the header line, got %d lines", len(lines))
	}

	var h map[string]any
	if err := json.Unmarshal(lines[0], &h); err != nil {
		t.Fatalf("header is not valid JSON: %v", err)
	}
	if h["version"] != float64(2) {
		t.Errorf("expected version 2, got %v", h["version"])
	}
	if h["width"] != float64(80) || h["height"] != float64(24) {
		t.Errorf("wrong dimensions: %vx%v", h["width"], h["height"])
	}
	if _, ok := h["timestamp"]; !ok {
		t.Error("header missing timestamp")
	}
}

func TestRecorder_Events(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewWithWriter(&buf, 80, 24)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	if err := r.Output([]byte("$ ls\n")); err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if err := r.Input([]byte("exit\n")); err != nil {
		t.Fatalf("Input failed: %v", err)
	}

	lines := readLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 events, got %d lines", len(lines))
	}

	checks := []struct {
		kind string
		data string
	}{
		{"o", "$ ls\n"},
		{"i", "exit\n"},
	}
	var lastOffset float64
	for i, want := range checks {
		var ev []any
		if err := json.Unmarshal(lines[i+1], &ev); err != nil {
			t.Fatalf("event %d is not valid JSON: %v", i, err)
		}
		if len(ev) != 3 {
			t.Fatalf("event %d: expected [offset, type, data], got %v", i, ev)
		}
		offset, ok := ev[0].(float64)
		if !ok || offset < lastOffset {
			t.Errorf("event %d: offsets must be non-decreasing, got %v", i, ev[0])
		}
		lastOffset = offset
		if ev[1] != want.kind {
			t.Errorf("event %d: expected type %q, got %v", i, want.kind, ev[1])
		}
		if ev[2] != want.data {
			t.Errorf("event %d: expected data %q, got %v", i, want.data, ev[2])
		}
	}
}

func TestRecorder_FileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cast")

	r, err := New(path, 120, 40)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := r.Output([]byte("hello")); err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("transcript missing: %v", err)
	}
	lines := readLines(t, bytes.NewBuffer(data))
	if len(lines) != 2 {
		t.Fatalf("expected header plus one event, got %d lines", len(lines))
	}
}

func TestRecorder_CreateFailure(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "session.cast"), 80, 24)
	if err == nil {
		t.Fatal("expected an error for an unwritable path")
	}
}

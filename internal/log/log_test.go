package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidLevel) {
			t.Errorf("Expected ErrInvalidLevel, got %v", err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: "debug", Dir: dir, MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("route replaced", slog.Int("points", 42))
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "truck-nav.slog"))
	if err != nil {
		t.Fatalf("Log file missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(lines))
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if rec["msg"] != "route replaced" || rec["points"] != float64(42) {
		t.Errorf("Unexpected record %v", rec)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("Expected ErrInvalidLevel, got %v", err)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, slog.LevelWarn)
	l.Info("hidden")
	l.Infof("hidden %d", 1)
	l.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Level filtering failed: %s", buf.String())
	}

	if err := l.SetLevel("info"); err != nil {
		t.Fatal(err)
	}
	l.Info("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("SetLevel did not lower the threshold")
	}
	if err := l.SetLevel("chatty"); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("Expected ErrInvalidLevel, got %v", err)
	}

	l.With(slog.String("session", "abc")).Error("boom")
	if !strings.Contains(buf.String(), `"session":"abc"`) {
		t.Errorf("With attributes missing: %s", buf.String())
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Debug("ignored")
	l.Info("ignored")
	l.Debugf("ignored %d", 1)
	if l.With("k", "v") != nil {
		t.Error("With on nil should stay nil")
	}
	if err := l.Close(); err != nil {
		t.Error(err)
	}
	if l.Slog() == nil {
		t.Error("Slog on nil should return a usable logger")
	}
	l.Slog().Info("discarded")
}

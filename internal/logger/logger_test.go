package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestJSONFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Debug("dropped")
	log.With(String("source", "isagha")).Info("attempt finished",
		Int("attempt", 2),
		Float("coverage", 0.75),
		Bool("accepted", false),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("boom")),
		Strings("suspicious", []string{"gold/24/sell"}),
	)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %d: %q", len(lines), data)
	}

	var event map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	want := map[string]any{
		"level":      "info",
		"message":    "attempt finished",
		"source":     "isagha",
		"attempt":    float64(2),
		"coverage":   0.75,
		"accepted":   false,
		"error":      "boom",
		"suspicious": "gold/24/sell",
	}
	for k, v := range want {
		if event[k] != v {
			t.Errorf("%s = %v, want %v", k, event[k], v)
		}
	}
	if _, ok := event["elapsed"]; !ok {
		t.Error("missing elapsed field")
	}
}

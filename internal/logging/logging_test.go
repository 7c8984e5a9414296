package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentFollowsLaterSetup(t *testing.T) {
	log := Component("early")

	var buf bytes.Buffer
	Setup(&buf, slog.LevelWarn, true)
	defer Init(slog.LevelInfo, false)

	log.Info("hidden")
	log.Warn("shown", "records", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["component"] != "early" || entry["msg"] != "shown" || entry["records"] != float64(3) {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo, false)
	defer Init(slog.LevelInfo, false)

	log := Component("lvl")
	log.Debug("before")
	SetLevel(slog.LevelDebug)
	log.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, slog.LevelInfo, false)
	defer Init(slog.LevelInfo, false)

	ctx := ContextWithSeriesID(ContextWithCycleID(context.Background(), "c-1"), "s-1")
	if got := CycleIDFromContext(ctx); got != "c-1" {
		t.Errorf("CycleIDFromContext = %q", got)
	}

	WithContext(ctx).WithGroup("view").Info("done", "kind", "mean")

	out := buf.String()
	for _, want := range []string{"cycle_id=c-1", "series_id=s-1", "view.kind=mean"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "sim")).Info(context.Background(), "flare entered",
		Int("position", 100),
		Float64("radiation", 0.45),
		Bool("hazard", true),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "flare entered" {
		t.Fatalf("msg = %v", rec["msg"])
	}
	if rec["component"] != "sim" || rec["hazard"] != true || rec["error"] != "boom" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["position"].(float64) != 100 {
		t.Fatalf("position = %v", rec["position"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestWithRequestLoggerKeepsExistingID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx, _ = WithRequestLogger(ctx, nil)
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("request id = %q, want req-1", got)
	}

	fresh, _ := WithRequestLogger(context.Background(), Noop())
	if id := RequestIDFromContext(fresh); len(id) != 32 {
		t.Fatalf("generated request id %q, want 32 hex chars", id)
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background(), nil) == nil {
		t.Fatalf("FromContext returned nil logger")
	}
	stored := Noop().With(String("k", "v"))
	ctx := ContextWithLogger(context.Background(), stored)
	if FromContext(ctx, nil) != stored {
		t.Fatalf("FromContext did not return stored logger")
	}
}

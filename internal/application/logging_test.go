package application

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/example/slot-reservations/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}
	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, scoped bytes.Buffer
	baseLogger := slog.New(slog.NewJSONHandler(&base, nil))
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewJSONHandler(&scoped, nil)))

	serviceLogger(ctx, baseLogger, "Coordinator", "Reserve", "team", "Team A").Info("slot reserved")

	if base.Len() != 0 {
		t.Fatalf("expected base logger to stay silent, got %s", base.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(scoped.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["service"] != "Coordinator" || entry["operation"] != "Reserve" || entry["team"] != "Team A" {
		t.Fatalf("unexpected log attributes: %v", entry)
	}

	base.Reset()
	serviceLogger(context.Background(), baseLogger, "Reconciler", "").Info("loaded")
	var plain map[string]any
	if err := json.Unmarshal(base.Bytes(), &plain); err != nil {
		t.Fatalf("decode base log entry: %v", err)
	}
	if _, ok := plain["operation"]; ok {
		t.Fatalf("expected no operation attribute when empty, got %v", plain)
	}
}

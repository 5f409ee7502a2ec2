package logger

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext() = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext(empty) = %q", got)
	}
}

func TestFromContext_Default(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Error("FromContext() should fall back to the default logger")
	}
}

func TestL_Enriches(t *testing.T) {
	l, buf := newTestLogger(t, "info", "json")

	ctx := WithLogger(context.Background(), l.Slog())
	ctx = WithRequestID(ctx, "req-12345")
	ctx = WithSessionID(ctx, "afs-01h")

	L(ctx).Info("tick")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if logEntry["request_id"] != "req-12345" {
		t.Errorf("request_id = %v", logEntry["request_id"])
	}
	if logEntry["session_id"] != "afs-01h" {
		t.Errorf("session_id = %v", logEntry["session_id"])
	}
}

func TestL_NoIDs(t *testing.T) {
	l, buf := newTestLogger(t, "info", "json")

	L(WithLogger(context.Background(), l.Slog())).Info("plain")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if _, ok := logEntry["request_id"]; ok {
		t.Error("request_id should be absent")
	}
}

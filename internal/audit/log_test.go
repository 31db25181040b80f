package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/openfinance-sandbox/fapigw/internal/auth"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithInteractionID(ctx, "b2a1c3d4-0000-4000-8000-000000000001")
	ctx = auth.ContextWithToken(ctx, auth.TokenDetails{ClientID: "client-42"})

	if err := LogEvent(ctx, "enrollment.created", map[string]any{"enrollment_id": "e-1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "enrollment.created" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["interaction_id"] != "b2a1c3d4-0000-4000-8000-000000000001" {
		t.Fatalf("unexpected interaction id: %v", entry["interaction_id"])
	}
	if entry["client_id"] != "client-42" {
		t.Fatalf("unexpected client id: %v", entry["client_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["enrollment_id"] != "e-1" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

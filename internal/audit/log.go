package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openfinance-sandbox/fapigw/internal/auth"
	"github.com/openfinance-sandbox/fapigw/internal/obs"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "audit_request_id"
	interactionIDKey ctxKey = "audit_interaction_id"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

// WithInteractionID attaches the x-fapi-interaction-id of the call.
func WithInteractionID(ctx context.Context, interactionID string) context.Context {
	return withValue(ctx, interactionIDKey, interactionID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	v = strings.TrimSpace(v)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// InteractionIDFromContext returns the FAPI interaction id, if any.
func InteractionIDFromContext(ctx context.Context) string {
	return valueFromContext(ctx, interactionIDKey)
}

// RequestIDFromContext returns the gateway request id, if any.
func RequestIDFromContext(ctx context.Context) string {
	return valueFromContext(ctx, requestIDKey)
}

// LogEvent writes an audit log entry enriched with request and client context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := logrus.Fields{
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if iid := InteractionIDFromContext(ctx); iid != "" {
		entry["interaction_id"] = iid
	}
	if clientID, ok := auth.ClientIDFromContext(ctx); ok {
		entry["client_id"] = clientID
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	obs.Logger().WithFields(entry).Info("audit")
	return nil
}

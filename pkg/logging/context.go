package logging

import (
	"context"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	eventKeyKey    contextKey = "event_key"
	serviceNameKey contextKey = "service_name"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithEventKey(ctx context.Context, eventKey string) context.Context {
	return context.WithValue(ctx, eventKeyKey, eventKey)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, serviceNameKey, serviceName)
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func GetEventKey(ctx context.Context) string {
	if eventKey, ok := ctx.Value(eventKeyKey).(string); ok {
		return eventKey
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(serviceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

// GetLogFields collects the context-scoped fields every log line should carry.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	if eventKey := GetEventKey(ctx); eventKey != "" {
		fields = append(fields, "event_key", eventKey)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}

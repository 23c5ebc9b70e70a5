package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	documentIDKey    contextKey = "document_id"
	sessionIDKey     contextKey = "session_id"
	correlationIDKey contextKey = "correlation_id"
)

// WithDocumentID annotates context with the storyboard document identifier.
func WithDocumentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, documentIDKey, id)
}

// DocumentIDFromContext extracts the document identifier if present.
func DocumentIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(documentIDKey).(string)
	return id, ok && id != ""
}

// WithSessionID annotates context with the generation session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// WithCorrelationID annotates context with a request correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier if present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok && id != ""
}

// LoggerWithContext derives a logger annotated with any identifiers carried
// by ctx.
func LoggerWithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := DocumentIDFromContext(ctx); ok {
		logger = logger.With(DocumentID(id))
	}
	if id, ok := SessionIDFromContext(ctx); ok {
		logger = logger.With(SessionID(id))
	}
	if id, ok := CorrelationIDFromContext(ctx); ok {
		logger = logger.With(String("correlation_id", id))
	}
	return logger
}

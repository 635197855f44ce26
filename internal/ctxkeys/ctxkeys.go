// Package ctxkeys holds the context.Context keys used to thread
// process-scoped configuration (database path, session id, LLM
// credentials, logger) through calls explicitly, so that multiple sessions
// can coexist in a single process and in tests, instead of relying on
// ambient globals.
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	dbPathKey    contextKey = "lcm_db_path"
	sessionIDKey contextKey = "lcm_session_id"
	apiKeyKey    contextKey = "lcm_llm_api_key"
	loggerKey    contextKey = "lcm_logger"
)

// WithDBPath attaches the database file path to ctx.
func WithDBPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, dbPathKey, path)
}

// DBPath returns the database file path stored in ctx, if any.
func DBPath(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(dbPathKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithSessionID attaches the active session id to ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionID returns the session id stored in ctx, if any.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAPIKey attaches the LLM provider API key to ctx.
func WithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

// APIKey returns the LLM provider API key stored in ctx, if any.
func APIKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the logger stored in ctx, falling back to zap.NewNop() so
// callers never need a nil check.
func Logger(ctx context.Context) *zap.Logger {
	if v, ok := ctx.Value(loggerKey).(*zap.Logger); ok && v != nil {
		return v
	}
	return zap.NewNop()
}

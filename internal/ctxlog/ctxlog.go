// Package ctxlog carries a structured logger through context.Context so
// deeply nested evaluation code can log without threading a logger argument
// everywhere.
package ctxlog

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With returns a context carrying the logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger carried by the context, or slog.Default when the
// context carries none.
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

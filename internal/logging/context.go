package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	itemKeyKey contextKey = "item_key"
	epochKey   contextKey = "epoch"
)

// WithItemKey annotates context with the table key being processed.
func WithItemKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, itemKeyKey, key)
}

// ItemKeyFromContext extracts the table key if present.
func ItemKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEpoch annotates context with the scheduler epoch counter.
func WithEpoch(ctx context.Context, epoch int64) context.Context {
	return context.WithValue(ctx, epochKey, epoch)
}

// EpochFromContext extracts the epoch counter if present.
func EpochFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(epochKey).(int64)
	return v, ok
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if epoch, ok := EpochFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldEpoch, epoch))
	}
	if key, ok := ItemKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItemKey, key))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

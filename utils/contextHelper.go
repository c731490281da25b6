package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pricing_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyRequestedBy   = appctx.ContextKeyRequestedBy
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// EnsureCorrelationId returns ctx carrying a correlation id, generating one
// when absent.
func EnsureCorrelationId(ctx context.Context) (context.Context, string) {
	if id, ok := GetCorrelationIdFromContext(ctx); ok && id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return SetCorrelationIdInContext(ctx, id), id
}

func GetRequestedByFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRequestedBy)
}

func SetRequestedByInContext(ctx context.Context, requestedBy string) context.Context {
	return appctx.Set(ctx, ContextKeyRequestedBy, requestedBy)
}

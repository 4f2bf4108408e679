package httpserver

import "context"

type ctxKey string

const resourceKey ctxKey = "tc.resource"

// WithResource stores the authenticated resource in ctx.
func WithResource(ctx context.Context, resource int) context.Context {
	return context.WithValue(ctx, resourceKey, resource)
}

// ResourceFromCtx fetches the authenticated resource from ctx.
func ResourceFromCtx(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(resourceKey).(int)
	return v, ok
}

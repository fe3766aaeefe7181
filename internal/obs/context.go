package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

// WithRoutePattern pins the route pattern used for labels, overriding what
// chi matched.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePattern returns the pinned pattern, else the chi pattern matched so
// far ("/api/v1/sales/{id}"), else "". Raw paths are never returned so ids
// stay out of metric labels and audit actions.
func RoutePattern(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok && v != "" {
		return v
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// RouteLabel resolves the route used for metric and log labels.
func RouteLabel(r *http.Request) string {
	return RoutePattern(r.Context())
}

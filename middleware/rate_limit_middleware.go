package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"gbxremote/message"
)

// RateLimitMiddleware paces queries with a token bucket. A query waits for
// a token; it fails only if ctx ends first.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, call)
		}
	}
}

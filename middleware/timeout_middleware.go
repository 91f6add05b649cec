package middleware

import (
	"context"
	"time"

	"gbxremote/message"
)

// TimeOutMiddleware bounds a whole query, including retries below it. The
// transport turns the deadline into socket deadlines, so an expired query
// fails with a read timeout and the connection is closed.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, call)
		}
	}
}

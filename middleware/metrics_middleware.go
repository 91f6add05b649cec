package middleware

import (
	"context"
	"errors"
	"time"

	"gbxremote/fault"
	"gbxremote/message"
	"gbxremote/metrics"
)

// MetricsMiddleware records query counts and latencies per method.
func MetricsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			start := time.Now()
			res, err := next(ctx, call)
			metrics.ObserveQuery(call.MethodName, status(err), time.Since(start))
			return res, err
		}
	}
}

func status(err error) string {
	var fe *fault.Error
	switch {
	case err == nil:
		return metrics.StatusOK
	case errors.As(err, &fe):
		return metrics.StatusFault
	default:
		return metrics.StatusError
	}
}

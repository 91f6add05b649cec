package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gbxremote/fault"
	"gbxremote/message"
)

// RetryMiddleware retries a query the server refused with
// "Change in progress.", waiting baseDelay, 2*baseDelay, ... between
// attempts. Other errors are returned immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			res, err := next(ctx, call)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !errors.Is(err, fault.ErrChangeInProgress) {
					return res, err
				}
				logger.Debug().Str("method", call.MethodName).Int("attempt", i+1).Msg("server busy, retrying")

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
				res, err = next(ctx, call)
			}
			return res, err
		}
	}
}

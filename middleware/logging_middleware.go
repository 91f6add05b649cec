package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gbxremote/fault"
	"gbxremote/message"
)

// LoggingMiddleware logs every query with its duration. Server faults are
// logged at info level since they are ordinary answers; anything else that
// fails is a warning.
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			start := time.Now()
			res, err := next(ctx, call)
			duration := time.Since(start)

			var fe *fault.Error
			switch {
			case err == nil:
				logger.Debug().Str("method", call.MethodName).Dur("duration", duration).Msg("query")
			case errors.As(err, &fe):
				logger.Info().Str("method", call.MethodName).Dur("duration", duration).
					Int("code", fe.Code).Stringer("kind", fe.Kind).Msg(fe.Message)
			default:
				logger.Warn().Str("method", call.MethodName).Dur("duration", duration).Err(err).Msg("query failed")
			}
			return res, err
		}
	}
}

// Package middleware wraps outgoing dedicated-server queries.
//
// A chain is built once and placed in front of the transport by the client:
//
//	Chain(Logging, Retry, Timeout)(transport.Query)
//
// The first middleware is the outermost.
package middleware

import (
	"context"

	"gbxremote/message"
)

// HandlerFunc performs one query.
type HandlerFunc func(ctx context.Context, call *message.Call) (any, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one, the first one outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

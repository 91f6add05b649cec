package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gbxremote/message"
)

const defaultTracerName = "gbxremote"

// TracingMiddleware opens a client span per query on the global tracer
// provider. Configure the provider in main before connecting; without one
// the spans are no-ops.
func TracingMiddleware(tracerName string) Middleware {
	if tracerName == "" {
		tracerName = defaultTracerName
	}
	tracer := otel.Tracer(tracerName)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (any, error) {
			ctx, span := tracer.Start(ctx, "gbxremote "+call.MethodName,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("rpc.system", "xmlrpc"),
					attribute.String("rpc.method", call.MethodName),
					attribute.Int("gbxremote.params", len(call.Params)),
				),
			)
			defer span.End()

			res, err := next(ctx, call)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return res, err
		}
	}
}

package middleware

import (
	"fmt"

	"feedline/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDLocal is the Fiber locals key holding the request's trace id.
const TraceIDLocal = "traceID"

// TracingMiddleware opens a server span per request. The span is named after
// the matched route template, so /api/feed/post/7 and /api/feed/post/8 share
// "GET /api/feed/post/:postId".
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))

		method := c.Method()
		ctx, span := observability.Tracer.Start(ctx, "HTTP "+method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("http.target", c.OriginalURL()),
				attribute.String("client.address", c.IP()),
				attribute.String("user_agent.original", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals(TraceIDLocal, traceID)
		c.Set("X-Trace-ID", traceID)
		if requestID := c.Locals("requestid"); requestID != nil {
			span.SetAttributes(attribute.String("request.id", fmt.Sprint(requestID)))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		route := c.Route().Path
		span.SetName(method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Response().StatusCode()),
		)
		if userID := UserID(c); userID != 0 {
			span.SetAttributes(attribute.Int64("user.id", int64(userID)))
		}

		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case c.Response().StatusCode() >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, "server error")
		}
		return err
	}
}

package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/qsubscription/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes describing which subscription action a request drove.
const (
	AttrInvocation    = attribute.Key("qsubscription.invocation")
	AttrApplicationID = attribute.Key("qsubscription.application_id")
	AttrAction        = attribute.Key("qsubscription.action")
)

// GinMiddleware opens a server span per request. The span is named after the
// route template and tagged with the subscription action and application.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("qsubscription/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withRequestBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)
		span.SetAttributes(subscriptionAttributes(c)...)

		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	if surface := obscontext.InvocationFromContext(ctx); surface != "" {
		span.SetAttributes(AttrInvocation.String(surface))
	}
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// subscriptionAttributes derives the action from the method and reads the
// application id from the query string when the caller sent one there.
func subscriptionAttributes(c *gin.Context) []attribute.KeyValue {
	if !strings.HasPrefix(c.FullPath(), "/subscriptions") {
		return nil
	}
	var attrs []attribute.KeyValue
	switch {
	case c.FullPath() == "/subscriptions" && c.Request.Method == http.MethodPost:
		attrs = append(attrs, AttrAction.String("ADD"))
	case c.FullPath() == "/subscriptions" && c.Request.Method == http.MethodDelete:
		attrs = append(attrs, AttrAction.String("DELETE"))
	}
	if appID := strings.TrimSpace(c.Query("applicationId")); appID != "" {
		attrs = append(attrs, AttrApplicationID.String(appID))
	}
	return attrs
}

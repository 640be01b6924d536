// Package apigateway adapts API Gateway proxy events to the subscription service.
package apigateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/qsubscription/internal/observability/context"
	"github.com/smallbiznis/qsubscription/internal/observability/logger"
	"github.com/smallbiznis/qsubscription/internal/observability/tracing"
	"github.com/smallbiznis/qsubscription/internal/server"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("apigateway",
	fx.Provide(NewHandler),
)

var responseHeaders = map[string]string{
	"Content-Type":                "application/json",
	"Access-Control-Allow-Origin": "*",
}

type Handler struct {
	svc    domain.Service
	log    *zap.Logger
	tracer trace.Tracer
}

type HandlerParams struct {
	fx.In

	Svc domain.Service
	Log *zap.Logger
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		svc:    p.Svc,
		log:    p.Log.Named("apigateway"),
		tracer: otel.Tracer("qsubscription/lambda"),
	}
}

// Handle serves one proxy event. Failures are reported in the response, so
// the returned error is always nil.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx = tracing.ExtractContext(ctx, propagation.MapCarrier(lowerKeys(event.Headers)))
	ctx = obscontext.WithRequestID(ctx, requestID(ctx, event))
	ctx = obscontext.WithInvocation(ctx, "lambda")

	method := strings.ToUpper(strings.TrimSpace(event.HTTPMethod))
	ctx, span := h.tracer.Start(ctx, "Lambda "+method, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	start := time.Now()
	status, body := h.dispatch(ctx, method, event)

	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", event.Resource),
		attribute.Int("http.status_code", status),
		tracing.AttrInvocation.String("lambda"),
	)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "request error")
	}

	log := logger.WithContext(ctx, h.log)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", event.Path),
		zap.Int("status", status),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if status >= http.StatusInternalServerError {
		log.Error("lambda_request", fields...)
	} else {
		log.Info("lambda_request", fields...)
	}

	return respond(status, body), nil
}

func (h *Handler) dispatch(ctx context.Context, method string, event events.APIGatewayProxyRequest) (int, any) {
	var req domain.Request
	switch method {
	case http.MethodPost:
		raw, err := eventBody(event)
		if err != nil {
			return server.MapError(domain.NewValidationError("Invalid request body"))
		}
		decoded, err := domain.DecodeRequest(raw)
		if err != nil {
			return server.MapError(err)
		}
		req = domain.AddRequest(decoded)
	case http.MethodDelete:
		q := event.QueryStringParameters
		req = domain.DeleteRequest(q["region"], q["applicationId"], q["assignmentType"], q["assignmentId"])
	default:
		return server.MapError(&domain.UnsupportedOperationError{Method: method})
	}

	result, err := h.svc.Handle(ctx, req)
	if err != nil {
		return server.MapError(err)
	}
	return http.StatusOK, result
}

func respond(status int, body any) events.APIGatewayProxyResponse {
	headers := make(map[string]string, len(responseHeaders))
	for k, v := range responseHeaders {
		headers[k] = v
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		var errBody server.ErrorBody
		status, errBody = server.MapError(err)
		encoded, _ = json.Marshal(errBody)
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(encoded)}
}

func eventBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

func requestID(ctx context.Context, event events.APIGatewayProxyRequest) string {
	if id := strings.TrimSpace(event.RequestContext.RequestID); id != "" {
		return id
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}

// lowerKeys normalizes header names for the trace propagator.
func lowerKeys(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Package upstream issues SigV4-signed JSON requests to the Q Business
// subscription endpoints.
package upstream

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/smallbiznis/qsubscription/internal/clock"
	"github.com/smallbiznis/qsubscription/internal/config"
	obsmetrics "github.com/smallbiznis/qsubscription/internal/observability/metrics"
	"github.com/smallbiznis/qsubscription/internal/observability/tracing"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// Config configures the signed client.
type Config struct {
	EndpointTemplate string
	SigningName      string
	Timeout          time.Duration
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
	Clock   clock.Clock         `optional:"true"`
}

type Client struct {
	endpointTemplate string
	signingName      string
	httpClient       *http.Client
	signer           *v4.Signer
	log              *zap.Logger
	metrics          *obsmetrics.Metrics
	tracer           trace.Tracer
	clock            clock.Clock
}

// New builds the client from application config.
func New(p Params) *Client {
	return NewClient(Config{
		EndpointTemplate: p.Cfg.AWS.EndpointTemplate,
		SigningName:      p.Cfg.AWS.SigningName,
		Timeout:          p.Cfg.AWS.UpstreamTimeout,
	}, p.Log, p.Metrics).WithClock(p.Clock)
}

func NewClient(cfg Config, log *zap.Logger, metrics *obsmetrics.Metrics) *Client {
	template := strings.TrimRight(strings.TrimSpace(cfg.EndpointTemplate), "/")
	if template == "" {
		template = config.DefaultEndpointTemplate
	}
	signingName := strings.TrimSpace(cfg.SigningName)
	if signingName == "" {
		signingName = config.DefaultSigningName
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		endpointTemplate: template,
		signingName:      signingName,
		httpClient:       &http.Client{Timeout: timeout},
		signer:           v4.NewSigner(),
		log:              log.Named("subscription.upstream"),
		metrics:          metrics,
		tracer:           otel.Tracer("qsubscription/upstream"),
		clock:            clock.SystemClock{},
	}
}

// WithClock replaces the signing time source. A nil clock is ignored.
func (c *Client) WithClock(clk clock.Clock) *Client {
	if clk != nil {
		c.clock = clk
	}
	return c
}

// BaseURL returns the service root for region.
func (c *Client) BaseURL(region string) string {
	return strings.ReplaceAll(c.endpointTemplate, "{region}", region)
}

// Do sends one signed request and decodes a JSON response into out when out
// is non-nil and the body is not empty. There is no retry.
func (c *Client) Do(
	ctx context.Context,
	creds aws.Credentials,
	operation string,
	region string,
	method string,
	endpoint string,
	payload any,
	out any,
) error {
	ctx, span := c.tracer.Start(ctx, "qbusiness "+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("aws.region", region),
		attribute.String("rpc.method", operation),
	)

	start := time.Now()
	status, err := c.do(ctx, creds, region, method, endpoint, payload, out)
	c.metrics.RecordUpstream(ctx, operation, status, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", status))

	if err != nil {
		if safeErr := tracing.SafeError(err); safeErr != nil {
			span.RecordError(safeErr)
		}
		span.SetStatus(codes.Error, "upstream request failed")
		c.log.Warn("upstream request failed",
			zap.String("operation", operation),
			zap.String("method", method),
			zap.Int("status", status),
			zap.Error(err),
		)
		return err
	}

	c.log.Info("upstream request succeeded",
		zap.String("operation", operation),
		zap.String("method", method),
		zap.Int("status", status),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

func (c *Client) do(
	ctx context.Context,
	creds aws.Credentials,
	region string,
	method string,
	endpoint string,
	payload any,
	out any,
) (int, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, &domain.UpstreamError{Err: fmt.Errorf("encode payload: %w", err)}
		}
		body = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, &domain.UpstreamError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	sum := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), c.signingName, region, c.clock.Now()); err != nil {
		return 0, &domain.UpstreamError{Err: fmt.Errorf("sign request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &domain.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        statusError(resp, endpoint),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &domain.UpstreamError{StatusCode: resp.StatusCode, Err: err}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return resp.StatusCode, nil
}

type awsErrorResponse struct {
	Message      string `json:"message"`
	MessageUpper string `json:"Message"`
}

func statusError(resp *http.Response, endpoint string) error {
	kind := "Server Error"
	if resp.StatusCode < http.StatusInternalServerError {
		kind = "Client Error"
	}
	msg := fmt.Sprintf("%d %s: %s for url: %s", resp.StatusCode, kind, http.StatusText(resp.StatusCode), endpoint)

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr awsErrorResponse
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		detail := strings.TrimSpace(apiErr.Message)
		if detail == "" {
			detail = strings.TrimSpace(apiErr.MessageUpper)
		}
		if detail != "" {
			msg += ": " + detail
		}
	}
	if errType := strings.TrimSpace(resp.Header.Get("X-Amzn-Errortype")); errType != "" {
		msg += " (" + strings.SplitN(errType, ":", 2)[0] + ")"
	}
	return errors.New(msg)
}

// Package identity wraps the Q Business application lookup and the IAM
// Identity Center application assignment calls.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssotypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	obsmetrics "github.com/smallbiznis/qsubscription/internal/observability/metrics"
	"github.com/smallbiznis/qsubscription/internal/observability/tracing"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	opGetApplication   = "GetApplication"
	opCreateAssignment = "CreateApplicationAssignment"
	opDeleteAssignment = "DeleteApplicationAssignment"
)

type ApplicationAPI interface {
	GetApplication(ctx context.Context, params *qbusiness.GetApplicationInput, optFns ...func(*qbusiness.Options)) (*qbusiness.GetApplicationOutput, error)
}

type AssignmentAPI interface {
	CreateApplicationAssignment(ctx context.Context, params *ssoadmin.CreateApplicationAssignmentInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.CreateApplicationAssignmentOutput, error)
	DeleteApplicationAssignment(ctx context.Context, params *ssoadmin.DeleteApplicationAssignmentInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.DeleteApplicationAssignmentOutput, error)
}

type Params struct {
	fx.In

	AWS     aws.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Adapter struct {
	applications ApplicationAPI
	assignments  AssignmentAPI
	log          *zap.Logger
	metrics      *obsmetrics.Metrics
	tracer       trace.Tracer
}

var _ domain.IdentityService = (*Adapter)(nil)

// New builds SDK clients from the shared aws.Config. The region is set per call.
func New(p Params) *Adapter {
	return NewAdapter(qbusiness.NewFromConfig(p.AWS), ssoadmin.NewFromConfig(p.AWS), p.Log, p.Metrics)
}

func NewAdapter(applications ApplicationAPI, assignments AssignmentAPI, log *zap.Logger, metrics *obsmetrics.Metrics) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		applications: applications,
		assignments:  assignments,
		log:          log.Named("subscription.identity"),
		metrics:      metrics,
		tracer:       otel.Tracer("qsubscription/identity"),
	}
}

// ApplicationArn returns the identity-center application ARN of a Q Business application.
func (a *Adapter) ApplicationArn(ctx context.Context, region, applicationID string) (string, error) {
	var arn string
	err := a.call(ctx, opGetApplication, region, func(ctx context.Context) error {
		out, err := a.applications.GetApplication(ctx, &qbusiness.GetApplicationInput{
			ApplicationId: aws.String(applicationID),
		}, func(o *qbusiness.Options) { o.Region = region })
		if err != nil {
			return err
		}
		arn = strings.TrimSpace(aws.ToString(out.IdentityCenterApplicationArn))
		if arn == "" {
			return errors.New("application has no identityCenterApplicationArn")
		}
		return nil
	})
	return arn, err
}

func (a *Adapter) CreateAssignment(ctx context.Context, region, applicationArn string, principal domain.Principal) error {
	principalType, err := principalType(principal)
	if err != nil {
		return err
	}
	return a.call(ctx, opCreateAssignment, region, func(ctx context.Context) error {
		_, err := a.assignments.CreateApplicationAssignment(ctx, &ssoadmin.CreateApplicationAssignmentInput{
			ApplicationArn: aws.String(applicationArn),
			PrincipalId:    aws.String(principal.ID()),
			PrincipalType:  principalType,
		}, func(o *ssoadmin.Options) { o.Region = region })
		return err
	})
}

func (a *Adapter) DeleteAssignment(ctx context.Context, region, applicationArn string, principal domain.Principal) error {
	principalType, err := principalType(principal)
	if err != nil {
		return err
	}
	return a.call(ctx, opDeleteAssignment, region, func(ctx context.Context) error {
		_, err := a.assignments.DeleteApplicationAssignment(ctx, &ssoadmin.DeleteApplicationAssignmentInput{
			ApplicationArn: aws.String(applicationArn),
			PrincipalId:    aws.String(principal.ID()),
			PrincipalType:  principalType,
		}, func(o *ssoadmin.Options) { o.Region = region })
		return err
	})
}

func (a *Adapter) call(ctx context.Context, operation, region string, fn func(context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, "identity "+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("rpc.method", operation),
		attribute.String("aws.region", region),
	)

	start := time.Now()
	err := fn(ctx)
	status := statusCode(err)
	a.metrics.RecordUpstream(ctx, operation, status, time.Since(start))

	if err != nil {
		if safeErr := tracing.SafeError(err); safeErr != nil {
			span.RecordError(safeErr)
		}
		span.SetStatus(codes.Error, "identity call failed")
		a.log.Warn("identity call failed",
			zap.String("operation", operation),
			zap.String("region", region),
			zap.Error(err),
		)
		return &domain.UpstreamError{Operation: operation, StatusCode: status, Err: err}
	}

	a.log.Info("identity call succeeded",
		zap.String("operation", operation),
		zap.String("region", region),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// statusCode reports the HTTP status carried by SDK response errors, 0 when
// the call never got a response.
func statusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatusCode()
	}
	return 0
}

func principalType(principal domain.Principal) (ssotypes.PrincipalType, error) {
	switch principal.Type() {
	case domain.AssignmentTypeGroup:
		return ssotypes.PrincipalTypeGroup, nil
	case domain.AssignmentTypeUser:
		return ssotypes.PrincipalTypeUser, nil
	default:
		return "", domain.NewValidationError("Invalid assignment type. Must be GROUP or USER")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/smallbiznis/qsubscription/internal/config"
	"github.com/smallbiznis/qsubscription/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/qsubscription/internal/observability/metrics"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const msgSubscriptionNotFound = "Subscription not found for the given application and principal"

type Service struct {
	log *zap.Logger

	defaultRegion string
	policy        *config.PolicyHolder
	identity      domain.IdentityService
	gateway       domain.SubscriptionGateway
	credentials   aws.CredentialsProvider
	metrics       *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	Policy      *config.PolicyHolder `optional:"true"`
	Identity    domain.IdentityService
	Gateway     domain.SubscriptionGateway
	Credentials aws.CredentialsProvider
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log: p.Log.Named("subscription.service"),

		defaultRegion: p.Cfg.AWS.DefaultRegion,
		policy:        p.Policy,
		identity:      p.Identity,
		gateway:       p.Gateway,
		credentials:   p.Credentials,
		metrics:       p.Metrics,
	}
}

// Handle implements domain.Service.
func (s *Service) Handle(ctx context.Context, req domain.Request) (domain.Result, error) {
	cmd, err := req.Validate(s.defaultRegion)
	if err != nil {
		s.metrics.RecordAction(ctx, "invalid", obsmetrics.OutcomeFailure)
		return domain.Result{}, err
	}

	// Upstream side effects are not interrupted by a caller going away.
	ctx = context.WithoutCancel(ctx)
	log := logger.WithApplication(logger.WithContext(ctx, s.log), cmd.Region, cmd.ApplicationID).With(
		zap.String("action", string(cmd.Action)),
		zap.Stringer("principal", cmd.Principal),
	)

	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		log.Error("failed to resolve credentials", zap.Error(err))
		s.metrics.RecordAction(ctx, string(cmd.Action), obsmetrics.OutcomeFailure)
		return domain.Result{}, &domain.UpstreamError{Err: fmt.Errorf("resolve credentials: %w", err)}
	}

	var result domain.Result
	switch cmd.Action {
	case domain.ActionAdd:
		result, err = s.add(ctx, log, creds, cmd)
	case domain.ActionDelete:
		result, err = s.delete(ctx, log, creds, cmd)
	}

	s.metrics.RecordAction(ctx, string(cmd.Action), outcome(err))
	if err != nil {
		return domain.Result{}, err
	}

	log.Info("subscription action completed", zap.String("subscription_id", result.SubscriptionID))
	return result, nil
}

func (s *Service) add(ctx context.Context, log *zap.Logger, creds aws.Credentials, cmd domain.Command) (domain.Result, error) {
	applicationArn, err := s.identity.ApplicationArn(ctx, cmd.Region, cmd.ApplicationID)
	if err != nil {
		return domain.Result{}, err
	}

	if err := s.identity.CreateAssignment(ctx, cmd.Region, applicationArn, cmd.Principal); err != nil {
		return domain.Result{}, err
	}
	log.Info("application assignment created")

	subscriptionID, err := s.gateway.CreateSubscription(ctx, creds, cmd.Region, cmd.ApplicationID, cmd.Principal, cmd.SubscriptionType)
	if err != nil {
		return domain.Result{}, s.compensateAdd(ctx, log, cmd, applicationArn, err)
	}
	log.Info("subscription created", zap.String("subscription_id", subscriptionID))

	return domain.Result{SubscriptionID: subscriptionID}, nil
}

// compensateAdd runs after the assignment exists but the subscription does not.
func (s *Service) compensateAdd(ctx context.Context, log *zap.Logger, cmd domain.Command, applicationArn string, cause error) error {
	partial := &domain.PartialCompletionError{
		Action:        cmd.Action,
		ApplicationID: cmd.ApplicationID,
		Principal:     cmd.Principal,
		Completed:     "application assignment created",
		Err:           cause,
	}

	if !s.policy.Get().Compensate {
		log.Error("subscription create failed after assignment was created", zap.Error(cause))
		return partial
	}

	if err := s.identity.DeleteAssignment(ctx, cmd.Region, applicationArn, cmd.Principal); err != nil {
		s.metrics.RecordCompensation(ctx, string(cmd.Action), obsmetrics.OutcomeFailure)
		log.Error("failed to roll back application assignment",
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		partial.Err = fmt.Errorf("%w; rollback failed: %v", cause, err)
		return partial
	}

	s.metrics.RecordCompensation(ctx, string(cmd.Action), obsmetrics.OutcomeSuccess)
	log.Warn("application assignment rolled back", zap.Error(cause))
	return cause
}

func (s *Service) delete(ctx context.Context, log *zap.Logger, creds aws.Credentials, cmd domain.Command) (domain.Result, error) {
	subscriptions, err := s.gateway.ListSubscriptions(ctx, creds, cmd.Region, cmd.ApplicationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("no subscriptions found for application")
		}
		return domain.Result{}, err
	}

	match, err := selectSubscription(subscriptions, cmd, s.policy.Get().DuplicatePrincipal)
	if err != nil {
		log.Warn("subscription lookup failed", zap.Int("listed", len(subscriptions)), zap.Error(err))
		return domain.Result{}, err
	}

	if err := s.gateway.DeleteSubscription(ctx, creds, cmd.Region, cmd.ApplicationID, match.ID); err != nil {
		return domain.Result{}, err
	}
	log.Info("subscription deleted", zap.String("subscription_id", match.ID))

	applicationArn, err := s.identity.ApplicationArn(ctx, cmd.Region, cmd.ApplicationID)
	if err == nil {
		err = s.identity.DeleteAssignment(ctx, cmd.Region, applicationArn, cmd.Principal)
	}
	if err != nil {
		return domain.Result{}, s.compensateDelete(ctx, log, creds, cmd, match, err)
	}
	log.Info("application assignment deleted")

	return domain.Result{SubscriptionID: match.ID, Status: domain.DeleteConfirmation}, nil
}

// compensateDelete runs after the subscription is gone but the assignment is not.
func (s *Service) compensateDelete(
	ctx context.Context,
	log *zap.Logger,
	creds aws.Credentials,
	cmd domain.Command,
	deleted domain.Subscription,
	cause error,
) error {
	partial := &domain.PartialCompletionError{
		Action:         cmd.Action,
		ApplicationID:  cmd.ApplicationID,
		Principal:      cmd.Principal,
		SubscriptionID: deleted.ID,
		Completed:      "subscription deleted",
		Err:            cause,
	}

	if !s.policy.Get().Compensate || deleted.Type == "" {
		log.Error("assignment delete failed after subscription was deleted",
			zap.String("subscription_id", deleted.ID),
			zap.Error(cause),
		)
		return partial
	}

	restoredID, err := s.gateway.CreateSubscription(ctx, creds, cmd.Region, cmd.ApplicationID, cmd.Principal, deleted.Type)
	if err != nil {
		s.metrics.RecordCompensation(ctx, string(cmd.Action), obsmetrics.OutcomeFailure)
		log.Error("failed to restore deleted subscription",
			zap.String("subscription_id", deleted.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		partial.Err = fmt.Errorf("%w; restore failed: %v", cause, err)
		return partial
	}

	s.metrics.RecordCompensation(ctx, string(cmd.Action), obsmetrics.OutcomeSuccess)
	log.Warn("deleted subscription restored",
		zap.String("subscription_id", deleted.ID),
		zap.String("restored_subscription_id", restoredID),
		zap.Error(cause),
	)
	return cause
}

// selectSubscription finds the record owned by the command's principal.
func selectSubscription(subscriptions []domain.Subscription, cmd domain.Command, duplicatePolicy string) (domain.Subscription, error) {
	var (
		match   domain.Subscription
		matches int
	)
	for _, sub := range subscriptions {
		if sub.Principal.IsZero() || sub.Principal != cmd.Principal {
			continue
		}
		if matches == 0 {
			match = sub
		}
		matches++
	}

	switch {
	case matches == 0:
		return domain.Subscription{}, domain.NewNotFoundError(msgSubscriptionNotFound)
	case matches > 1 && duplicatePolicy == config.DuplicatePrincipalError:
		return domain.Subscription{}, &domain.AmbiguousPrincipalError{
			ApplicationID: cmd.ApplicationID,
			Principal:     cmd.Principal,
			Matches:       matches,
		}
	default:
		return match, nil
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return obsmetrics.OutcomeSuccess
	case errors.Is(err, domain.ErrPartialCompletion):
		return obsmetrics.OutcomePartial
	default:
		return obsmetrics.OutcomeFailure
	}
}

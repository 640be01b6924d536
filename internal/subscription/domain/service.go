package domain

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Service is the subscription assignment manager.
type Service interface {
	// Handle validates req and runs the ADD or DELETE flow.
	Handle(ctx context.Context, req Request) (Result, error)
}

// IdentityService resolves application references and manages
// principal-to-application assignments.
type IdentityService interface {
	ApplicationArn(ctx context.Context, region, applicationID string) (string, error)
	CreateAssignment(ctx context.Context, region, applicationArn string, principal Principal) error
	DeleteAssignment(ctx context.Context, region, applicationArn string, principal Principal) error
}

// SubscriptionGateway talks to the signed subscription endpoints. Credentials
// are passed per call; the gateway never resolves them itself.
type SubscriptionGateway interface {
	// ListSubscriptions returns a NotFoundError when the response has no
	// subscriptions collection.
	ListSubscriptions(ctx context.Context, creds aws.Credentials, region, applicationID string) ([]Subscription, error)
	CreateSubscription(ctx context.Context, creds aws.Credentials, region, applicationID string, principal Principal, subscriptionType SubscriptionType) (string, error)
	DeleteSubscription(ctx context.Context, creds aws.Credentials, region, applicationID, subscriptionID string) error
}

package subscription

import (
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"github.com/smallbiznis/qsubscription/internal/subscription/identity"
	"github.com/smallbiznis/qsubscription/internal/subscription/service"
	"github.com/smallbiznis/qsubscription/internal/subscription/upstream"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(
		fx.Annotate(identity.New, fx.As(new(domain.IdentityService))),
		fx.Annotate(upstream.New, fx.As(new(domain.SubscriptionGateway))),
	),
	fx.Provide(service.NewService),
)

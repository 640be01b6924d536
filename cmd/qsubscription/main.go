package main

import (
	"github.com/smallbiznis/qsubscription/internal/awsauth"
	"github.com/smallbiznis/qsubscription/internal/clock"
	"github.com/smallbiznis/qsubscription/internal/config"
	"github.com/smallbiznis/qsubscription/internal/observability"
	"github.com/smallbiznis/qsubscription/internal/server"
	"github.com/smallbiznis/qsubscription/internal/subscription"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		awsauth.Module,
		clock.Module,

		// Functional Domains
		subscription.Module,
		server.Module,
	)
	app.Run()
}

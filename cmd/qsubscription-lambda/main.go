package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/smallbiznis/qsubscription/internal/apigateway"
	"github.com/smallbiznis/qsubscription/internal/awsauth"
	"github.com/smallbiznis/qsubscription/internal/clock"
	"github.com/smallbiznis/qsubscription/internal/config"
	"github.com/smallbiznis/qsubscription/internal/observability"
	"github.com/smallbiznis/qsubscription/internal/subscription"
	"go.uber.org/fx"
)

func main() {
	var handler *apigateway.Handler
	app := fx.New(
		config.Module,
		observability.Module,
		awsauth.Module,
		clock.Module,
		subscription.Module,
		apigateway.Module,
		fx.Populate(&handler),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}

	lambda.StartWithOptions(handler.Handle,
		// Flush logs and exporters when the runtime shuts the sandbox down.
		lambda.WithEnableSIGTERM(func() {
			stopCtx, stop := context.WithTimeout(context.Background(), app.StopTimeout())
			defer stop()
			_ = app.Stop(stopCtx)
		}),
	)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/qsubscription/internal/observability/context"
	"github.com/smallbiznis/qsubscription/internal/server"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type subscriptionFlags struct {
	region           string
	applicationID    string
	assignmentType   string
	assignmentID     string
	subscriptionType string
}

func (f *subscriptionFlags) bind(cmd *cobra.Command, withType bool) {
	cmd.Flags().StringVar(&f.region, "region", "", "AWS region of the application (defaults to AWS_REGION)")
	cmd.Flags().StringVar(&f.applicationID, "application-id", "", "Q Business application id")
	cmd.Flags().StringVar(&f.assignmentType, "assignment-type", "", "GROUP or USER")
	cmd.Flags().StringVar(&f.assignmentID, "assignment-id", "", "Identity Center group or user id")
	if withType {
		cmd.Flags().StringVar(&f.subscriptionType, "subscription-type", "", "Q_BUSINESS or Q_LITE")
	}
}

func buildAddCmd() *cobra.Command {
	flags := &subscriptionFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Assign a principal to an application and subscribe it",
		Args:  cobra.NoArgs,
		Example: `  # Subscribe a group to Q Lite
  qsubctl add --region us-east-1 --application-id app1 \
    --assignment-type GROUP --assignment-id grp1 --subscription-type Q_LITE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &subscriptionRunner{deps: getDeps(cmd.Context())}
			return runner.Run(cmd, domain.AddRequest(domain.Request{
				Region:           flags.region,
				ApplicationID:    flags.applicationID,
				AssignmentType:   flags.assignmentType,
				AssignmentID:     flags.assignmentID,
				SubscriptionType: flags.subscriptionType,
			}))
		},
	}
	flags.bind(cmd, true)
	return cmd
}

func buildRemoveCmd() *cobra.Command {
	flags := &subscriptionFlags{}
	cmd := &cobra.Command{
		Use:     "remove",
		Aliases: []string{"delete"},
		Short:   "Cancel a principal's subscription and remove its assignment",
		Args:    cobra.NoArgs,
		Example: `  # Remove a user
  qsubctl remove --region us-east-1 --application-id app1 \
    --assignment-type USER --assignment-id usr1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &subscriptionRunner{deps: getDeps(cmd.Context())}
			return runner.Run(cmd, domain.DeleteRequest(flags.region, flags.applicationID, flags.assignmentType, flags.assignmentID))
		},
	}
	flags.bind(cmd, false)
	return cmd
}

type subscriptionRunner struct {
	deps *cliDeps
}

// Run prints the result JSON on stdout, or the error body on stderr.
func (r *subscriptionRunner) Run(cmd *cobra.Command, req domain.Request) error {
	if r.deps == nil {
		return fmt.Errorf("internal error: deps not initialized")
	}
	defer r.deps.Close()

	start := time.Now()
	ctx := obscontext.WithRequestID(cmd.Context(), uuid.NewString())
	ctx = obscontext.WithInvocation(ctx, "cli")

	result, err := r.deps.Service.Handle(ctx, req)
	defer func() {
		r.deps.Log.Info("command finished",
			zap.String("command", cmd.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}()

	if err != nil {
		_, body := server.MapError(err)
		if encodeErr := writeJSON(r.deps.Stderr, body); encodeErr != nil {
			return encodeErr
		}
		return &reportedError{err: err}
	}
	return writeJSON(r.deps.Stdout, result)
}

func writeJSON(w io.Writer, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(encoded))
	return err
}

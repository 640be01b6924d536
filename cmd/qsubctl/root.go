package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	logPath    string
	logLevel   string
	policyPath string
	profile    string
}

type depsKey struct{}

func withDeps(ctx context.Context, deps *cliDeps) context.Context {
	return context.WithValue(ctx, depsKey{}, deps)
}

func getDeps(ctx context.Context) *cliDeps {
	deps, _ := ctx.Value(depsKey{}).(*cliDeps)
	return deps
}

// newRootCmd builds the command tree. factory is called once before a
// subcommand runs.
func newRootCmd(factory depsFactory) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "qsubctl",
		Short:         "Manage Q Business subscription assignments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Flags().Changed("help") {
				return nil
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			deps, err := factory(ctx, opts)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			deps.Log.Info("new run", zap.String("command", cmd.Name()), zap.Strings("args", os.Args))
			cmd.SetContext(withDeps(ctx, deps))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logPath, "log-file", defaultLogPath(), "Path of the rotating log file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "debug", "Log level written to the log file")
	cmd.PersistentFlags().StringVar(&opts.policyPath, "policy", "", "Path to a policy.yml file")
	cmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "AWS shared config profile")

	cmd.AddCommand(buildAddCmd(), buildRemoveCmd())
	return cmd
}

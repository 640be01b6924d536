package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/smallbiznis/qsubscription/internal/awsauth"
	"github.com/smallbiznis/qsubscription/internal/config"
	"github.com/smallbiznis/qsubscription/internal/observability/logger"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
	"github.com/smallbiznis/qsubscription/internal/subscription/identity"
	"github.com/smallbiznis/qsubscription/internal/subscription/service"
	"github.com/smallbiznis/qsubscription/internal/subscription/upstream"
	"go.uber.org/zap"
)

// cliDeps contains the injectable dependencies of the subscription commands.
type cliDeps struct {
	Stdout io.Writer
	Stderr io.Writer

	Log     *zap.Logger
	Service domain.Service

	close func()
}

func (d *cliDeps) Close() {
	if d != nil && d.close != nil {
		d.close()
	}
}

type depsFactory func(ctx context.Context, opts *rootOptions) (*cliDeps, error)

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "qsubctl.log")
	}
	return filepath.Join(home, ".qsubctl", "qsubctl.log")
}

// newDeps wires the real AWS-backed service.
func newDeps(ctx context.Context, opts *rootOptions) (*cliDeps, error) {
	log, closeLog, err := logger.NewFile(logger.FileConfig{
		Path:       opts.logPath,
		Level:      opts.logLevel,
		MaxSizeMB:  2,
		MaxAgeDays: 30,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg := config.Load()
	if opts.policyPath != "" {
		cfg.PolicyConfigPath = opts.policyPath
	}
	if opts.profile != "" {
		cfg.AWS.Profile = opts.profile
	}

	policy, err := config.NewPolicyHolder(cfg, log)
	if err != nil {
		closeLog()
		return nil, err
	}

	awsCfg, err := awsauth.LoadConfig(cfg, log)
	if err != nil {
		closeLog()
		return nil, err
	}
	creds, err := awsauth.CredentialsProvider(awsCfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	svc := service.NewService(service.ServiceParam{
		Log:         log,
		Cfg:         cfg,
		Policy:      policy,
		Identity:    identity.New(identity.Params{AWS: awsCfg, Log: log}),
		Gateway:     upstream.New(upstream.Params{Cfg: cfg, Log: log}),
		Credentials: creds,
	})

	return &cliDeps{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Log:     log,
		Service: svc,
		close:   closeLog,
	}, nil
}

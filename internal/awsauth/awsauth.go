// Package awsauth builds the AWS SDK configuration from the ambient execution
// identity (environment, shared profile, container or instance role).
package awsauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/smallbiznis/qsubscription/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("awsauth",
	fx.Provide(LoadConfig),
	fx.Provide(CredentialsProvider),
)

// LoadConfig resolves the SDK config. The default region only seeds SDK
// clients; every call overrides it with the request's region.
func LoadConfig(cfg config.Config, log *zap.Logger) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.DefaultRegion),
	}
	if profile := strings.TrimSpace(cfg.AWS.Profile); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	if log != nil {
		log.Info("aws config loaded",
			zap.String("default_region", awsCfg.Region),
			zap.String("profile", cfg.AWS.Profile),
		)
	}
	return awsCfg, nil
}

// CredentialsProvider exposes the provider behind awsCfg so callers can
// retrieve credentials explicitly instead of through a shared session.
func CredentialsProvider(awsCfg aws.Config) (aws.CredentialsProvider, error) {
	if awsCfg.Credentials == nil {
		return nil, fmt.Errorf("aws config has no credentials provider")
	}
	return awsCfg.Credentials, nil
}

// Static returns a provider for fixed keys, used by tests and local tooling.
func Static(accessKeyID, secretAccessKey, sessionToken string) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
}

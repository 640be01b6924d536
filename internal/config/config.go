package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	AWS AWSConfig

	PolicyConfigPath string
}

type AWSConfig struct {
	// DefaultRegion is used when a request does not name a region.
	DefaultRegion string
	Profile       string

	// EndpointTemplate is the Q Business base URL; "{region}" is substituted per request.
	EndpointTemplate string
	SigningName      string
	UpstreamTimeout  time.Duration
}

const (
	DefaultEndpointTemplate = "https://qbusiness.{region}.api.aws"
	DefaultSigningName      = "qbusiness"
	DefaultUpstreamTimeout  = 120 * time.Second
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "qsubscription"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		AWS: AWSConfig{
			DefaultRegion:    strings.TrimSpace(getenv("AWS_REGION", getenv("AWS_DEFAULT_REGION", "us-east-1"))),
			Profile:          strings.TrimSpace(getenv("AWS_PROFILE", "")),
			EndpointTemplate: strings.TrimRight(strings.TrimSpace(getenv("QBUSINESS_ENDPOINT_TEMPLATE", DefaultEndpointTemplate)), "/"),
			SigningName:      getenv("QBUSINESS_SIGNING_NAME", DefaultSigningName),
			UpstreamTimeout:  getenvSeconds("UPSTREAM_TIMEOUT_SECONDS", DefaultUpstreamTimeout),
		},
		PolicyConfigPath: strings.TrimSpace(getenv("POLICY_CONFIG_PATH", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return time.Duration(parsed) * time.Second
}

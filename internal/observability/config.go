package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/qsubscription/internal/config"
)

// envPrefix scopes overrides to this service when several share one environment.
const envPrefix = "QSUBSCRIPTION_"

// Config holds observability settings for whichever surface is running.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	// Surface is "lambda" inside the Lambda runtime and "http" otherwise.
	Surface string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.TrimSpace(lookup("DEPLOYMENT_ENV", cfg.Environment)),
		Version:              strings.TrimSpace(lookup("SERVICE_VERSION", cfg.AppVersion)),
		Surface:              "http",
		LogLevel:             strings.ToLower(lookup("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(lookup("LOG_FORMAT", "json")),
		OtelEnabled:          lookupBool("OTEL_ENABLED", false),
		OtelExporterEndpoint: strings.TrimSpace(lookup("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)),
		OtelExporterProtocol: strings.ToLower(lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", lookup("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:    lookupFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
	if out.ServiceName == "" {
		out.ServiceName = "qsubscription"
	}

	// Inside Lambda the function name and version identify the deployment.
	if fn := strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")); fn != "" {
		out.Surface = "lambda"
		out.LogFormat = "json"
		if strings.TrimSpace(os.Getenv(envPrefix+"SERVICE_NAME")) == "" {
			out.ServiceName = fn
		}
		if v := strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")); v != "" && v != "$LATEST" {
			out.Version = v
		}
	}
	if name := strings.TrimSpace(os.Getenv(envPrefix + "SERVICE_NAME")); name != "" {
		out.ServiceName = name
	}
	return out
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// lookup prefers QSUBSCRIPTION_<key> over the shared <key>.
func lookup(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func lookupBool(key string, def bool) bool {
	switch strings.ToLower(lookup(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func lookupFloat(key string, def float64) float64 {
	value := lookup(key, "")
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

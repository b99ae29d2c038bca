package observability

import (
	"strings"

	"github.com/smallbiznis/loadpass/internal/config"
)

// Config is the resolved logging and telemetry setup for this process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	// LogSQLParams keeps bound values in gorm query logs. Development only.
	LogSQLParams bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig resolves telemetry settings, letting DEPLOYMENT_ENV and SERVICE_VERSION
// override the application values.
func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	environment := pick(t.DeploymentEnv, cfg.Environment)

	return Config{
		ServiceName:          pick(cfg.AppName, "loadpass"),
		Environment:          environment,
		Version:              pick(t.ServiceVersion, cfg.AppVersion),
		LogLevel:             pick(t.LogLevel, "info"),
		LogFormat:            pick(t.LogFormat, "json"),
		LogSQLParams:         t.LogSQLParams && isDevEnv(environment),
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: pick(t.OtelProtocol, "grpc"),
		OtelSamplingRatio:    clampRatio(t.OtelSampleRate),
	}
}

// Debug is true for debug logging or any development environment.
func (c Config) Debug() bool {
	return strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func pick(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}

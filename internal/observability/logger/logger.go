package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/loadpass/internal/observability/context"
	"github.com/smallbiznis/loadpass/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultSampleInitial    = 100
	defaultSampleThereafter = 100
)

// Config configures the process logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the JSON production logger, installs it as the zap global and
// flushes it when the app stops.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	zapCfg, err := productionConfig(cfg)
	if err != nil {
		return nil, err
	}

	log, err := zapCfg.Build(buildOptions(cfg)...)
	if err != nil {
		return nil, err
	}

	log = log.With(
		zap.String("service", firstNonEmpty(cfg.ServiceName, "loadpass")),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
	}
	return log, nil
}

func productionConfig(cfg Config) (zap.Config, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = "json"
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	// sampling is installed through WrapCore so the window is configurable
	zapCfg.Sampling = nil

	level := firstNonEmpty(cfg.Level, "info")
	if cfg.Debug && cfg.Level == "" {
		level = "debug"
	}
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zapCfg, nil
}

func buildOptions(cfg Config) []zap.Option {
	var options []zap.Option
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	initial := positiveOr(cfg.SamplingInitial, defaultSampleInitial)
	thereafter := positiveOr(cfg.SamplingThereafter, defaultSampleThereafter)
	window := cfg.SamplingWindow
	if window <= 0 {
		window = time.Second
	}
	return append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(core, window, initial, thereafter)
	}))
}

// FromContext returns the global logger with the request scoped ids found on ctx.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds request, correlation, user and trace ids. Empty ids are omitted.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	var fields []zap.Field
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	add("request_id", obscontext.RequestIDFromContext(ctx))
	add("correlation_id", correlation.FromContext(ctx))
	add("user_id", obscontext.UserIDFromContext(ctx))
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}

	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func firstNonEmpty(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

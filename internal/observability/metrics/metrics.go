package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the load ledger counters. A nil *Metrics records nothing.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

const (
	counterCheckoutLinks   = "loadpass_checkout_links_total"
	counterLoadsGranted    = "loadpass_loads_granted_total"
	counterLoadsConsumed   = "loadpass_loads_consumed_total"
	counterPaymentEvents   = "loadpass_payment_events_total"
	counterRateLimitDenied = "loadpass_rate_limit_denied_total"
)

var counterSpecs = []struct {
	name, unit, help string
}{
	{counterCheckoutLinks, "{link}", "Square payment links issued."},
	{counterLoadsGranted, "{load}", "Loads credited to user balances."},
	{counterLoadsConsumed, "{attempt}", "Load consumption attempts."},
	{counterPaymentEvents, "{event}", "Payment webhook deliveries processed."},
	{counterRateLimitDenied, "{request}", "Requests rejected by the rate limiter."},
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the ledger counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "loadpass"
	}
	meter := provider.Meter(name)

	m := &Metrics{counters: make(map[string]metric.Int64Counter, len(counterSpecs))}
	for _, spec := range counterSpecs {
		counter, err := meter.Int64Counter(spec.name,
			metric.WithUnit(spec.unit),
			metric.WithDescription(spec.help),
		)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", spec.name, err)
		}
		m.counters[spec.name] = counter
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	if m == nil || n <= 0 {
		return
	}
	counter, ok := m.counters[name]
	if !ok {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

func (m *Metrics) RecordCheckoutLink(ctx context.Context, packageHandle string) {
	m.add(ctx, counterCheckoutLinks, 1, label("package_handle", packageHandle))
}

// RecordLoadsGranted adds the granted loads, labelled by grant source.
func (m *Metrics) RecordLoadsGranted(ctx context.Context, source, packageHandle string, loads int64) {
	m.add(ctx, counterLoadsGranted, loads, label("source", source), label("package_handle", packageHandle))
}

func (m *Metrics) RecordLoadConsumed(ctx context.Context, outcome string) {
	m.add(ctx, counterLoadsConsumed, 1, label("outcome", outcome))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	m.add(ctx, counterPaymentEvents, 1, label("provider", provider), label("event_type", eventType))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, counterRateLimitDenied, 1, label("endpoint", endpoint), label("reason", reason))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":       {},
	"status_code":    {},
	"package_handle": {},
	"provider":       {},
	"event_type":     {},
	"source":         {},
	"outcome":        {},
	"reason":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

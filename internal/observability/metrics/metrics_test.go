package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("package_handle", "starter"),
		attribute.String("user_id", "456"),
		attribute.String("source", "webhook"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "package_handle" && attrs[1].Key != "package_handle" {
		t.Fatalf("expected package_handle to be retained")
	}
	if attrs[0].Key != "source" && attrs[1].Key != "source" {
		t.Fatalf("expected source to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordCheckoutLink(context.Background(), "starter")
	m.RecordLoadsGranted(context.Background(), "callback", "starter", 5)
	m.RecordLoadConsumed(context.Background(), "ok")
	m.RecordPaymentEvent(context.Background(), "square", "payment.updated")
	m.RecordRateLimitDenied(context.Background(), "checkout", "user")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "loadpass"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m == nil {
		t.Fatalf("expected metrics instance")
	}
}

func TestLoadsGrantedSumsAcrossCalls(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "loadpass"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordLoadsGranted(ctx, "webhook", "starter", 5)
	m.RecordLoadsGranted(ctx, "webhook", "starter", 3)
	m.RecordLoadsGranted(ctx, "webhook", "starter", 0)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, item := range scope.Metrics {
			if item.Name != counterLoadsGranted {
				continue
			}
			sum, ok := item.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("unexpected data for %s: %#v", item.Name, item.Data)
			}
			if got := sum.DataPoints[0].Value; got != 8 {
				t.Fatalf("expected 8 loads granted, got %d", got)
			}
			return
		}
	}
	t.Fatalf("expected %s to be collected", counterLoadsGranted)
}

func TestHTTPMetricsRecordsRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	httpMetrics, err := newHTTPMetrics(registry, Config{ServiceName: "loadpass", Environment: "test"})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	router := gin.New()
	router.Use(GinMiddleware(httpMetrics))
	router.POST("/functions/v1/use-load", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/use-load", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	family := findFamily(families, "loadpass_http_requests_total")
	if family == nil {
		t.Fatalf("expected loadpass_http_requests_total to be registered")
	}
	if len(family.GetMetric()) != 1 {
		t.Fatalf("expected one series, got %d", len(family.GetMetric()))
	}
	series := family.GetMetric()[0]
	if got := series.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected counter 2, got %v", got)
	}
	labels := map[string]string{}
	for _, pair := range series.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["route"] != "/functions/v1/use-load" || labels["status_code"] != "200" || labels["env"] != "test" {
		t.Fatalf("unexpected labels: %v", labels)
	}

	if _, err := newHTTPMetrics(registry, Config{ServiceName: "loadpass", Environment: "test"}); err != nil {
		t.Fatalf("expected re-registration to reuse collectors, got %v", err)
	}
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("user_id", "auth0|123"),
		attribute.String("operation", "video_upload"),
		attribute.String("outcome", "reject"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("expected user_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordUsageUpdate(context.Background(), "upload")
	m.RecordQuotaDecision(context.Background(), "image_upload", "allow", "")
	m.RecordPaymentEvent(context.Background(), "paymob", "duplicate")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordPaymentTransition(context.Background(), "paymob", "SUCCESS")
	m.RecordRateLimitDenied(context.Background(), "/payment/initiate", "user-rate")
}

package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "payment_intent.succeeded"),
		attribute.String("stripe_event_id", "evt_123"),
		attribute.String("outcome", "processed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "stripe_event_id" {
			t.Fatalf("expected stripe_event_id to be dropped")
		}
	}
}

func TestRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordWebhookEvent(ctx, "payment_intent.succeeded", "processed")
	m.RecordOrderReconciled(ctx, "paid")
	m.RecordRefundRecorded(ctx)
	m.RecordCheckoutSession(ctx)
	m.RecordAccountOnboarded(ctx, "US")
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "mercato"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected metrics")
	}
	m.RecordWebhookEvent(context.Background(), "account.updated", "processed")
}

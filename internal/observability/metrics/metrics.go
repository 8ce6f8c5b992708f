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

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents     metric.Int64Counter
	ordersReconciled  metric.Int64Counter
	refundsRecorded   metric.Int64Counter
	checkoutSessions  metric.Int64Counter
	accountsOnboarded metric.Int64Counter
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "mercato"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("mercato_webhook_events_total")
	if err != nil {
		return nil, err
	}
	ordersReconciled, err := meter.Int64Counter("mercato_orders_reconciled_total")
	if err != nil {
		return nil, err
	}
	refundsRecorded, err := meter.Int64Counter("mercato_refunds_recorded_total")
	if err != nil {
		return nil, err
	}
	checkoutSessions, err := meter.Int64Counter("mercato_checkout_sessions_total")
	if err != nil {
		return nil, err
	}
	accountsOnboarded, err := meter.Int64Counter("mercato_accounts_onboarded_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:     webhookEvents,
		ordersReconciled:  ordersReconciled,
		refundsRecorded:   refundsRecorded,
		checkoutSessions:  checkoutSessions,
		accountsOnboarded: accountsOnboarded,
	}, nil
}

// RecordWebhookEvent increments webhook event counts per type and outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderReconciled increments reconciled order counts.
func (m *Metrics) RecordOrderReconciled(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.ordersReconciled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRefundRecorded increments recorded refund counts.
func (m *Metrics) RecordRefundRecorded(ctx context.Context) {
	if m == nil {
		return
	}
	m.refundsRecorded.Add(ctx, 1)
}

// RecordCheckoutSession increments created checkout session counts.
func (m *Metrics) RecordCheckoutSession(ctx context.Context) {
	if m == nil {
		return
	}
	m.checkoutSessions.Add(ctx, 1)
}

// RecordAccountOnboarded increments completed onboarding counts.
func (m *Metrics) RecordAccountOnboarded(ctx context.Context, country string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("country", strings.TrimSpace(country)))
	m.accountsOnboarded.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"endpoint":    {},
	"status_code": {},
	"event_type":  {},
	"outcome":     {},
	"status":      {},
	"country":     {},
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

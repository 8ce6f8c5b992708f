package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics instruments inbound HTTP traffic. Labels use the route
// template, never the raw path, to keep cardinality bounded.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	meter := provider.Meter("mercato/http")

	requests, err := meter.Int64Counter("mercato_http_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"mercato_http_request_duration_seconds",
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

func (h *HTTPMetrics) Record(c *gin.Context, elapsed time.Duration) {
	if h == nil {
		return
	}

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unmatched"
	}

	attrs := FilterAttributes(
		attribute.String("endpoint", c.Request.Method+" "+endpoint),
		attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
	)
	ctx := c.Request.Context()
	h.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	h.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func GinMiddleware(h *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Record(c, time.Since(start))
	}
}

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelSink implements Sink on an OpenTelemetry meter with Prometheus export
type OTelSink struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

// NewOTelSink creates a new OpenTelemetry metrics sink with Prometheus format
func NewOTelSink() (*OTelSink, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	meter := meterProvider.Meter(
		"webhook-relay",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	return &OTelSink{
		meterProvider: meterProvider,
		meter:         meter,
		counters:      make(map[string]metric.Float64Counter),
		histograms:    make(map[string]metric.Float64Histogram),
		gauges:        make(map[string]metric.Float64Gauge),
	}, nil
}

// Inc increments the named counter by one
func (s *OTelSink) Inc(name string, labels Labels) {
	s.mu.Lock()
	counter, ok := s.counters[name]
	if !ok {
		var err error
		counter, err = s.meter.Float64Counter(name)
		if err != nil {
			s.mu.Unlock()
			return
		}
		s.counters[name] = counter
	}
	s.mu.Unlock()

	counter.Add(context.Background(), 1, metric.WithAttributes(toAttributes(labels)...))
}

// Observe records one value on the named histogram
func (s *OTelSink) Observe(name string, labels Labels, value float64) {
	s.mu.Lock()
	histogram, ok := s.histograms[name]
	if !ok {
		var err error
		histogram, err = s.meter.Float64Histogram(name, metric.WithUnit("s"))
		if err != nil {
			s.mu.Unlock()
			return
		}
		s.histograms[name] = histogram
	}
	s.mu.Unlock()

	histogram.Record(context.Background(), value, metric.WithAttributes(toAttributes(labels)...))
}

// Set records the current value of the named gauge
func (s *OTelSink) Set(name string, labels Labels, value float64) {
	s.mu.Lock()
	gauge, ok := s.gauges[name]
	if !ok {
		var err error
		gauge, err = s.meter.Float64Gauge(name)
		if err != nil {
			s.mu.Unlock()
			return
		}
		s.gauges[name] = gauge
	}
	s.mu.Unlock()

	gauge.Record(context.Background(), value, metric.WithAttributes(toAttributes(labels)...))
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint
func (s *OTelSink) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider
func (s *OTelSink) Shutdown(ctx context.Context) error {
	return s.meterProvider.Shutdown(ctx)
}

func toAttributes(labels Labels) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

package scanner

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scanMetrics holds the OpenTelemetry instruments for one connection.
type scanMetrics struct {
	probes          metric.Int64Counter
	peeks           metric.Int64Counter
	existenceChecks metric.Int64Counter
	evictions       metric.Int64Counter
	resets          metric.Int64Counter

	attrs metric.MeasurementOption
}

func newScanMetrics(meter metric.Meter, addr string) (*scanMetrics, error) {
	m := &scanMetrics{
		attrs: metric.WithAttributes(attribute.String("beanstalk.addr", addr)),
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.probes, "climber.scan.probes", "Max-id probes inserted and deleted"},
		{&m.peeks, "climber.scan.peeks", "Job ids fetched by body during range scans"},
		{&m.existenceChecks, "climber.scan.existence_checks", "Cached jobs revalidated with stats-job"},
		{&m.evictions, "climber.scan.evictions", "Cached jobs evicted because they no longer exist"},
		{&m.resets, "climber.scan.resets", "Server id sequence resets detected"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	return m, nil
}

func (m *scanMetrics) add(ctx context.Context, counter metric.Int64Counter) {
	counter.Add(ctx, 1, m.attrs)
}

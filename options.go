package climber

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/climber/audit"
	"github.com/zero-day-ai/climber/config"
	"github.com/zero-day-ai/climber/discovery"
	"github.com/zero-day-ai/climber/pool"
)

// Option configures a Climber.
//
// Explicit options take priority over values read from a configuration
// file, which take priority over the defaults.
type Option func(*options)

// options holds construction settings for a Climber.
type options struct {
	addresses      []string
	cfg            *config.Config
	configPath     string
	testTube       string
	logger         *slog.Logger
	dialer         pool.Dialer
	discovery      discovery.Source
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	probePriority  *uint32
	probeTTR       time.Duration
	sink           audit.Sink
	filter         *string
}

// WithAddresses sets the servers to crawl. Each spec may be host,
// host:port, beanstalk://host:port, or several of those separated by
// whitespace or commas. Without addresses, discovery, config or the
// BEANSTALK_URL environment variable, localhost:11300 is used.
func WithAddresses(specs ...string) Option {
	return func(o *options) {
		o.addresses = append(o.addresses, specs...)
	}
}

// WithConfig applies a parsed configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithConfigFile loads the configuration from a climber.yaml file, or from
// a directory containing one, when New runs.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithTestTube sets the private tube probes are inserted into.
// Default: "stalk_climber".
func WithTestTube(name string) Option {
	return func(o *options) {
		o.testTube = name
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDialer replaces the TCP dialer used to open each server connection.
func WithDialer(d pool.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithDiscovery reads server addresses from src when no addresses are
// given explicitly.
func WithDiscovery(src discovery.Source) Option {
	return func(o *options) {
		o.discovery = src
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for scan metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for scan spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithProbePriority sets the priority of max-id probe jobs.
func WithProbePriority(pri uint32) Option {
	return func(o *options) {
		o.probePriority = &pri
	}
}

// WithProbeTTR sets the time-to-run of max-id probe jobs.
func WithProbeTTR(ttr time.Duration) Option {
	return func(o *options) {
		o.probeTTR = ttr
	}
}

// WithAuditSink sets the sink Export writes to when called with a nil sink.
// The sink is not closed by Climber.Close.
func WithAuditSink(sink audit.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithFilter sets the CEL expression FindJobs and FindFirst apply when
// called with an empty expression.
func WithFilter(expr string) Option {
	return func(o *options) {
		o.filter = &expr
	}
}

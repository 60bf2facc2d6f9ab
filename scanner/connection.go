package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zero-day-ai/climber/beanstalk"
	"github.com/zero-day-ai/climber/job"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTestTube is the private tube probes are inserted into.
	DefaultTestTube = "stalk_climber"

	// ProbePriority is the least urgent priority, so no worker prefers a
	// probe over real work during its short life.
	ProbePriority = math.MaxUint32

	// DefaultProbeTTR is the time-to-run given to probes.
	DefaultProbeTTR = 300 * time.Second

	// Unexplored is the minimum watermark of a connection no scan has
	// visited yet.
	Unexplored = math.MaxUint64

	instrumentationName = "github.com/zero-day-ai/climber/scanner"
)

// Option configures a Connection.
type Option func(*Connection)

// WithTestTube sets the private tube used for probes.
func WithTestTube(name string) Option {
	return func(c *Connection) {
		if name != "" {
			c.testTube = name
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProbeTTR overrides the time-to-run of probe jobs.
func WithProbeTTR(ttr time.Duration) Option {
	return func(c *Connection) {
		if ttr > 0 {
			c.probeTTR = ttr
		}
	}
}

// WithProbePriority overrides the priority of probe jobs.
func WithProbePriority(pri uint32) Option {
	return func(c *Connection) {
		c.probePriority = pri
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for scan metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Connection) {
		if mp != nil {
			c.meter = mp.Meter(instrumentationName)
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for scan spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Connection) {
		if tp != nil {
			c.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// Connection scans every job on one server. It owns the server's job cache
// and the climbed-id watermarks that let repeated scans skip work.
//
// A Connection must not be scanned from two goroutines at once; the cache
// and watermarks are not synchronized.
type Connection struct {
	client        beanstalk.Client
	testTube      string
	probePriority uint32
	probeTTR      time.Duration
	logger        *slog.Logger
	meter         metric.Meter
	tracer        trace.Tracer
	metrics       *scanMetrics

	cache      map[uint64]*job.Job
	minClimbed uint64
	maxClimbed uint64
}

// New wraps client in a Connection and switches it to the private tube.
func New(ctx context.Context, client beanstalk.Client, opts ...Option) (*Connection, error) {
	c := &Connection{
		client:        client,
		testTube:      DefaultTestTube,
		probePriority: ProbePriority,
		probeTTR:      DefaultProbeTTR,
		logger:        slog.Default(),
		meter:         otel.GetMeterProvider().Meter(instrumentationName),
		tracer:        otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("addr", client.Addr())

	metrics, err := newScanMetrics(c.meter, client.Addr())
	if err != nil {
		return nil, err
	}
	c.metrics = metrics
	c.ClearCache()

	if err := client.Use(ctx, c.testTube); err != nil {
		return nil, fmt.Errorf("failed to use tube %s on %s: %w", c.testTube, client.Addr(), err)
	}

	return c, nil
}

// Addr returns the server address.
func (c *Connection) Addr() string {
	return c.client.Addr()
}

// Client returns the underlying command primitive.
func (c *Connection) Client() beanstalk.Client {
	return c.client
}

// TestTube returns the private tube probes go into.
func (c *Connection) TestTube() string {
	return c.testTube
}

// SetTestTube switches the private tube.
func (c *Connection) SetTestTube(ctx context.Context, name string) error {
	if err := c.client.Use(ctx, name); err != nil {
		return fmt.Errorf("failed to use tube %s on %s: %w", name, c.Addr(), err)
	}
	c.testTube = name
	return nil
}

// Watermarks returns the lowest and highest ids any scan has confirmed.
// min is Unexplored and max is 0 before the first visit.
func (c *Connection) Watermarks() (min, max uint64) {
	return c.minClimbed, c.maxClimbed
}

// CachedJobs returns the cached jobs in descending id order.
func (c *Connection) CachedJobs() []*job.Job {
	jobs := make([]*job.Job, 0, len(c.cache))
	for _, j := range c.cache {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID() > jobs[b].ID() })
	return jobs
}

// ClearCache forgets every cached job and resets both watermarks.
func (c *Connection) ClearCache() {
	c.cache = make(map[uint64]*job.Job)
	c.minClimbed = Unexplored
	c.maxClimbed = 0
}

// FetchJob peeks the job with the given id. An absent job yields nil, nil.
func (c *Connection) FetchJob(ctx context.Context, id uint64) (*job.Job, error) {
	j, err := job.Peek(ctx, c.client, id)
	if beanstalk.IsNotFound(err) {
		return nil, nil
	}
	return j, err
}

// FetchJobStrict peeks the job with the given id, reporting absence as
// beanstalk.ErrNotFound.
func (c *Connection) FetchJobStrict(ctx context.Context, id uint64) (*job.Job, error) {
	return job.Peek(ctx, c.client, id)
}

// FetchJobs fetches each id in order; absent jobs leave a nil entry.
func (c *Connection) FetchJobs(ctx context.Context, ids ...uint64) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(ids))
	for _, id := range ids {
		j, err := c.FetchJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// FetchJobsStrict fetches each id in order and fails on the first absent one.
func (c *Connection) FetchJobsStrict(ctx context.Context, ids ...uint64) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(ids))
	for _, id := range ids {
		j, err := c.FetchJobStrict(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// MaxJobID discovers the highest id the server has assigned by putting a
// throwaway probe into the private tube and deleting it straight away. The
// probe's id is returned.
//
// Comparing the probe id with the watermarks detects a server reset: an id
// at or below the highest climbed id can only come from a fresh id sequence,
// so the cache and watermarks are discarded.
func (c *Connection) MaxJobID(ctx context.Context) (uint64, error) {
	c.metrics.add(ctx, c.metrics.probes)

	id, err := c.client.Put(ctx, c.probeBody(), c.probePriority, 0, c.probeTTR)
	if err != nil {
		return 0, err
	}
	if err := job.FromInsert(c.client, id).Delete(ctx); err != nil {
		return 0, err
	}

	c.updateClimbedFromMax(ctx, id)
	return id, nil
}

// updateClimbedFromMax applies a fresh probe id to the watermarks.
//
// While maxClimbed is non-zero, slot maxClimbed+1 always belongs to an
// earlier probe: scans start at the probe id minus one and this function
// only ever advances maxClimbed to one below a probe. So a probe landing at
// maxClimbed+2 proves nothing new was put since, and the old probe's slot
// is climbed without a peek.
func (c *Connection) updateClimbedFromMax(ctx context.Context, newMax uint64) {
	switch {
	case newMax <= c.maxClimbed:
		c.logger.Warn("job id sequence went backwards, discarding cache",
			"probe_id", newMax,
			"max_climbed_id", c.maxClimbed,
			"cached_jobs", len(c.cache),
		)
		c.metrics.add(ctx, c.metrics.resets)
		c.ClearCache()
	case c.maxClimbed > 0 && c.maxClimbed+2 == newMax:
		c.maxClimbed = newMax - 1
	}
}

func (c *Connection) probeBody() []byte {
	return []byte(fmt.Sprintf(`{"probe":%q}`, uuid.NewString()))
}

// Close closes the underlying client.
func (c *Connection) Close() error {
	return c.client.Close()
}

// String implements fmt.Stringer.
func (c *Connection) String() string {
	return fmt.Sprintf("connection %s (tube %s)", c.Addr(), c.testTube)
}

package climber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/climber/audit"
	"github.com/zero-day-ai/climber/beanstalk"
	"github.com/zero-day-ai/climber/config"
	"github.com/zero-day-ai/climber/discovery"
	"github.com/zero-day-ai/climber/enumerate"
	"github.com/zero-day-ai/climber/fanout"
	"github.com/zero-day-ai/climber/filter"
	"github.com/zero-day-ai/climber/health"
	"github.com/zero-day-ai/climber/job"
	"github.com/zero-day-ai/climber/pool"
	"github.com/zero-day-ai/climber/scanner"
	"github.com/zero-day-ai/climber/tube"
)

// Climber crawls every job and tube on a fixed set of servers.
//
// Sequential enumeration (Jobs().Seq, FindJobs, FindFirst) may be used from
// one goroutine at a time. Concurrent enumeration (EachConcurrent, Export)
// uses one goroutine per server and must not overlap another enumeration.
type Climber struct {
	pool     *pool.Pool
	logger   *slog.Logger
	filter   *filter.Filter
	sink     audit.Sink
	ownsSink bool
}

// New connects to every configured server.
//
// Addresses come from, in order: WithAddresses, WithDiscovery, discovery
// endpoints in the configuration, addresses in the configuration, the
// BEANSTALK_URL environment variable, and finally localhost:11300. Every
// address is validated before any connection is opened; an invalid one
// fails with an *Error of KindConfiguration.
func New(ctx context.Context, opts ...Option) (*Climber, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cfg := o.cfg
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, NewConfigurationError("New", err)
		}
		cfg = loaded
	}

	expr := cfg.GetFilter()
	if o.filter != nil {
		expr = *o.filter
	}
	f, err := filter.Compile(expr)
	if err != nil {
		return nil, NewConfigurationError("New", err)
	}

	specs, err := addressSpecs(ctx, o, cfg)
	if err != nil {
		return nil, err
	}

	c := &Climber{logger: o.logger, filter: f, sink: o.sink}
	if c.sink == nil && cfg != nil && cfg.Audit.Enabled() {
		sink, err := audit.NewRedisSink(audit.RedisOptions{
			URL:       cfg.Audit.RedisURL,
			KeyPrefix: cfg.Audit.GetKeyPrefix(),
			TTL:       cfg.Audit.GetTTL(),
		})
		if err != nil {
			return nil, NewNetworkError("New", err)
		}
		c.sink, c.ownsSink = sink, true
	}

	p, err := pool.New(ctx, specs, poolOptions(o, cfg)...)
	if err != nil {
		if c.ownsSink {
			CloseWithLog(c.sink, c.logger, "audit sink")
		}
		if isAddressError(err) {
			return nil, NewConfigurationError("New", err)
		}
		return nil, NewNetworkError("New", err)
	}
	c.pool = p

	c.logger.Info("climber connected", "servers", p.Addresses())
	return c, nil
}

func addressSpecs(ctx context.Context, o *options, cfg *config.Config) ([]string, error) {
	if len(o.addresses) > 0 {
		return o.addresses, nil
	}

	src := o.discovery
	if src == nil && cfg != nil && cfg.Discovery.Enabled() {
		dc := discovery.Config{
			Endpoints:   cfg.Discovery.Endpoints,
			Namespace:   cfg.Discovery.GetNamespace(),
			DialTimeout: cfg.Discovery.GetDialTimeout(),
		}
		if t := cfg.Discovery.TLS; t != nil {
			dc.TLS = &discovery.TLSConfig{CertFile: t.CertFile, KeyFile: t.KeyFile, CAFile: t.CAFile}
		}
		etcd, err := discovery.NewEtcdSource(dc)
		if err != nil {
			return nil, NewNetworkError("New", err)
		}
		defer CloseWithLog(etcd, o.logger, "discovery client")
		src = etcd
	}

	if src != nil {
		addrs, err := src.Addresses(ctx)
		if err != nil {
			return nil, NewNetworkError("New", fmt.Errorf("failed to discover servers: %w", err))
		}
		if len(addrs) == 0 {
			return nil, NewConfigurationError("New", ErrNoAddresses)
		}
		return addrs, nil
	}

	return cfg.GetAddresses(), nil
}

func poolOptions(o *options, cfg *config.Config) []pool.Option {
	testTube := cfg.GetTestTube()
	if o.testTube != "" {
		testTube = o.testTube
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = pool.TCPDialer(cfg.GetDialTimeout(), cfg.GetOpTimeout())
	}

	var probe *config.ProbeConfig
	if cfg != nil {
		probe = cfg.Probe
	}
	priority := probe.GetPriority()
	if o.probePriority != nil {
		priority = *o.probePriority
	}
	ttr := probe.GetTTR()
	if o.probeTTR > 0 {
		ttr = o.probeTTR
	}

	scannerOpts := []scanner.Option{
		scanner.WithProbePriority(priority),
		scanner.WithProbeTTR(ttr),
	}
	if o.meterProvider != nil {
		scannerOpts = append(scannerOpts, scanner.WithMeterProvider(o.meterProvider))
	}
	if o.tracerProvider != nil {
		scannerOpts = append(scannerOpts, scanner.WithTracerProvider(o.tracerProvider))
	}

	return []pool.Option{
		pool.WithDialer(dialer),
		pool.WithTestTube(testTube),
		pool.WithLogger(o.logger),
		pool.WithScannerOptions(scannerOpts...),
	}
}

func isAddressError(err error) bool {
	return errors.Is(err, ErrNoAddresses) ||
		errors.Is(err, ErrInvalidScheme) ||
		errors.Is(err, ErrInvalidAddress)
}

// Pool returns the underlying connection pool.
func (c *Climber) Pool() *pool.Pool {
	return c.pool
}

// Connections returns the per-server connections in address order.
func (c *Climber) Connections() []*scanner.Connection {
	return c.pool.Connections()
}

// Addresses returns the host:port of every server in order.
func (c *Climber) Addresses() []string {
	return c.pool.Addresses()
}

// Jobs returns the fan-out over every job on every server.
func (c *Climber) Jobs() *fanout.Enumerable[*job.Job] {
	return fanout.New(c.pool.Connections(), JobStrategy)
}

// Tubes returns the fan-out over every tube on every server. A tube present
// on several servers is yielded once per server; see TubeSummaries.
func (c *Climber) Tubes() *fanout.Enumerable[*tube.Tube] {
	return fanout.New(c.pool.Connections(), TubeStrategy)
}

// TubeSummaries returns the stats of every tube summed across servers,
// ordered by tube name.
func (c *Climber) TubeSummaries(ctx context.Context) ([]tube.Summary, error) {
	tubes, err := enumerate.Collect(ctx, c.Tubes().Seq())
	if err != nil {
		return nil, NewExecutionError("Climber.TubeSummaries", err)
	}
	return tube.Merge(ctx, tubes)
}

// MaxJobIDs probes every server and returns the highest job id on each,
// keyed by server address.
func (c *Climber) MaxJobIDs(ctx context.Context) (map[string]uint64, error) {
	ids := make(map[string]uint64, c.pool.Len())
	for _, conn := range c.pool.Connections() {
		id, err := conn.MaxJobID(ctx)
		if err != nil {
			return nil, NewExecutionError("Climber.MaxJobIDs", err).
				WithContext(map[string]any{"addr": conn.Addr()})
		}
		ids[conn.Addr()] = id
	}
	return ids, nil
}

// FindJobs returns every job matching the CEL expression, in sequential
// enumeration order. An empty expression applies the configured filter.
// Jobs deleted while being evaluated are skipped.
func (c *Climber) FindJobs(ctx context.Context, expr string) ([]*job.Job, error) {
	return c.find(ctx, "Climber.FindJobs", expr, false)
}

// FindFirst returns the first job matching the CEL expression and stops
// the enumeration there. It returns nil when no job matches.
func (c *Climber) FindFirst(ctx context.Context, expr string) (*job.Job, error) {
	jobs, err := c.find(ctx, "Climber.FindFirst", expr, true)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

func (c *Climber) find(ctx context.Context, op, expr string, first bool) ([]*job.Job, error) {
	f := c.filter
	if strings.TrimSpace(expr) != "" {
		compiled, err := filter.Compile(expr)
		if err != nil {
			return nil, NewValidationError(op, err)
		}
		f = compiled
	}

	var (
		matches  []*job.Job
		matchErr error
	)
	err := c.Jobs().Seq()(ctx, func(j *job.Job) bool {
		ok, err := f.Match(ctx, j)
		if beanstalk.IsNotFound(err) {
			return true
		}
		if err != nil {
			matchErr = err
			return false
		}
		if ok {
			matches = append(matches, j)
		}
		return !(ok && first)
	})
	if err == nil {
		err = matchErr
	}
	if err != nil {
		return nil, NewExecutionError(op, err).WithContext(map[string]any{"filter": f.String()})
	}
	return matches, nil
}

// pruner is implemented by sinks that can drop snapshots of jobs an export
// no longer found.
type pruner interface {
	Prune(ctx context.Context, addr string, keep []uint64) (int, error)
}

// Export snapshots every job on every server into sink, one goroutine per
// server, and records the run. A nil sink selects the configured one.
//
// When every server was scanned without error and the sink supports
// pruning, snapshots of jobs that no longer exist are removed. The returned
// Run is filled in even when err is non-nil.
func (c *Climber) Export(ctx context.Context, sink audit.Sink) (audit.Run, error) {
	if sink == nil {
		sink = c.sink
	}
	if sink == nil {
		return audit.Run{}, NewConfigurationError("Climber.Export", ErrNoSink)
	}

	run := audit.Run{
		ID:        uuid.NewString(),
		Servers:   c.pool.Addresses(),
		StartedAt: time.Now().UnixMilli(),
	}
	logger := c.logger.With("run_id", run.ID)

	var mu sync.Mutex
	found := make(map[string][]uint64, len(run.Servers))

	err := c.Jobs().EachConcurrent(ctx, func(j *job.Job) error {
		snap, err := j.Snapshot(ctx)
		if beanstalk.IsNotFound(err) {
			// Deleted between the scan and the snapshot.
			return nil
		}
		if err != nil {
			return err
		}
		if err := sink.Write(ctx, run.ID, snap); err != nil {
			return err
		}

		mu.Lock()
		run.Jobs++
		found[snap.Addr] = append(found[snap.Addr], snap.ID)
		mu.Unlock()
		return nil
	})
	run.Errors = countErrors(err)

	errs := []error{err}
	if p, ok := sink.(pruner); ok && err == nil {
		for _, addr := range run.Servers {
			removed, err := p.Prune(ctx, addr, found[addr])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if removed > 0 {
				logger.Debug("pruned stale snapshots", "addr", addr, "removed", removed)
			}
		}
	}

	run.FinishedAt = time.Now().UnixMilli()
	if err := sink.RecordRun(ctx, run); err != nil {
		errs = append(errs, err)
	}

	logger.Info("export finished",
		"jobs", run.Jobs,
		"errors", run.Errors,
		"duration", run.Duration())

	if err := errors.Join(errs...); err != nil {
		return run, NewExecutionError("Climber.Export", err)
	}
	return run, nil
}

func countErrors(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}

// Health issues list-tubes on every server and combines the results.
func (c *Climber) Health(ctx context.Context) health.Status {
	checks := make([]health.Status, 0, c.pool.Len())
	for _, conn := range c.pool.Connections() {
		checks = append(checks, health.ClientCheck(ctx, conn.Client()))
	}
	return health.Combine(checks...)
}

// Close closes every server connection, and the audit sink when it was
// opened from configuration.
func (c *Climber) Close() error {
	errs := []error{c.pool.Close()}
	if c.ownsSink {
		errs = append(errs, c.sink.Close())
	}
	return errors.Join(errs...)
}

// String implements fmt.Stringer.
func (c *Climber) String() string {
	return fmt.Sprintf("climber [%s]", strings.Join(c.pool.Addresses(), " "))
}

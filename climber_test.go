package climber

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zero-day-ai/climber/audit"
	"github.com/zero-day-ai/climber/beanstalk"
	"github.com/zero-day-ai/climber/config"
	"github.com/zero-day-ai/climber/enumerate"
	"github.com/zero-day-ai/climber/fanout"
	"github.com/zero-day-ai/climber/job"
)

// testDialer hands out MemoryServer clients, one server per address.
type testDialer struct {
	mu      sync.Mutex
	servers map[string]*beanstalk.MemoryServer
	clients map[string]*beanstalk.MemoryClient
	dialed  []string
	fail    map[string]error
}

func newTestDialer() *testDialer {
	return &testDialer{
		servers: make(map[string]*beanstalk.MemoryServer),
		clients: make(map[string]*beanstalk.MemoryClient),
		fail:    make(map[string]error),
	}
}

func (d *testDialer) server(addr string) *beanstalk.MemoryServer {
	d.mu.Lock()
	defer d.mu.Unlock()
	srv, ok := d.servers[addr]
	if !ok {
		srv = beanstalk.NewMemoryServer()
		d.servers[addr] = srv
	}
	return srv
}

func (d *testDialer) dial(_ context.Context, addr string) (beanstalk.Client, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, addr)
	err := d.fail[addr]
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	client := d.server(addr).Client(addr)
	d.mu.Lock()
	d.clients[addr] = client
	d.mu.Unlock()
	return client, nil
}

// staticSource is a discovery.Source with fixed results.
type staticSource struct {
	addrs []string
	err   error
}

func (s staticSource) Addresses(context.Context) ([]string, error) {
	return s.addrs, s.err
}

// setupClimber connects to a:11300 and b:11300 seeded with the given
// number of jobs in the default tube.
func setupClimber(t *testing.T, jobsA, jobsB int, opts ...Option) (*Climber, *testDialer) {
	t.Helper()
	d := newTestDialer()
	for addr, n := range map[string]int{"a:11300": jobsA, "b:11300": jobsB} {
		srv := d.server(addr)
		for i := 0; i < n; i++ {
			srv.Insert("default", []byte(fmt.Sprintf("%s/%d", addr, i)))
		}
	}

	opts = append([]Option{WithAddresses("a", "b"), WithDialer(d.dial)}, opts...)
	c, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, d
}

type found struct {
	addr string
	id   uint64
}

func foundJobs(jobs []*job.Job) []found {
	out := make([]found, len(jobs))
	for i, j := range jobs {
		out[i] = found{j.Addr(), j.ID()}
	}
	return out
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("addresses and test tube", func(t *testing.T) {
		c, _ := setupClimber(t, 0, 0, WithTestTube("probes"))
		assert.Equal(t, []string{"a:11300", "b:11300"}, c.Addresses())
		assert.Equal(t, 2, c.Pool().Len())
		for _, conn := range c.Connections() {
			assert.Equal(t, "probes", conn.TestTube())
		}
		assert.Equal(t, "climber [a:11300 b:11300]", c.String())
	})

	t.Run("invalid scheme is a configuration error", func(t *testing.T) {
		d := newTestDialer()
		_, err := New(ctx, WithAddresses("a", "http://b"), WithDialer(d.dial))
		require.Error(t, err)

		var cerr *Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, KindConfiguration, cerr.Kind)
		assert.ErrorIs(t, err, ErrInvalidScheme)
		assert.Empty(t, d.dialed, "nothing dialed before validation")
	})

	t.Run("dial failure is a network error", func(t *testing.T) {
		d := newTestDialer()
		d.fail["b:11300"] = errors.New("connection refused")
		_, err := New(ctx, WithAddresses("a b"), WithDialer(d.dial))
		assert.ErrorIs(t, err, &Error{Kind: KindNetwork})
		_, err = d.clients["a:11300"].ListTubes(ctx)
		assert.ErrorIs(t, err, beanstalk.ErrClosed, "opened connections are closed")
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("BEANSTALK_URL", "beanstalk://env-q:11400")
		d := newTestDialer()
		c, err := New(ctx, WithDialer(d.dial))
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, []string{"env-q:11400"}, c.Addresses())
	})

	t.Run("config with explicit override", func(t *testing.T) {
		d := newTestDialer()
		cfg := &config.Config{Addresses: []string{"cfg-a, cfg-b:11301"}, TestTube: "cfg_tube"}

		c, err := New(ctx, WithConfig(cfg), WithDialer(d.dial))
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, []string{"cfg-a:11300", "cfg-b:11301"}, c.Addresses())
		assert.Equal(t, "cfg_tube", c.Connections()[0].TestTube())

		c2, err := New(ctx, WithConfig(cfg), WithTestTube("explicit"), WithAddresses("x"), WithDialer(d.dial))
		require.NoError(t, err)
		defer c2.Close()
		assert.Equal(t, []string{"x:11300"}, c2.Addresses())
		assert.Equal(t, "explicit", c2.Connections()[0].TestTube())
	})

	t.Run("config file", func(t *testing.T) {
		dir := t.TempDir()
		yaml := "addresses: [file-q]\ntest_tube: from_file\nfilter: 'pri < 10u'\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "climber.yaml"), []byte(yaml), 0o644))

		d := newTestDialer()
		d.server("file-q:11300").Insert("default", []byte("x"))
		c, err := New(ctx, WithConfigFile(dir), WithDialer(d.dial))
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, []string{"file-q:11300"}, c.Addresses())

		jobs, err := c.FindJobs(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, jobs, "default priority 1024 fails the configured filter")

		_, err = New(ctx, WithConfigFile(filepath.Join(dir, "missing.yaml")))
		assert.ErrorIs(t, err, &Error{Kind: KindConfiguration})
	})

	t.Run("discovery", func(t *testing.T) {
		d := newTestDialer()
		c, err := New(ctx, WithDiscovery(staticSource{addrs: []string{"beanstalk://disc-a", "disc-b:11302"}}), WithDialer(d.dial))
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, []string{"disc-a:11300", "disc-b:11302"}, c.Addresses())

		_, err = New(ctx, WithDiscovery(staticSource{}), WithDialer(d.dial))
		assert.ErrorIs(t, err, ErrNoAddresses)
		assert.ErrorIs(t, err, &Error{Kind: KindConfiguration})

		_, err = New(ctx, WithDiscovery(staticSource{err: errors.New("etcd unavailable")}), WithDialer(d.dial))
		assert.ErrorIs(t, err, &Error{Kind: KindNetwork})
	})

	t.Run("invalid filter", func(t *testing.T) {
		d := newTestDialer()
		_, err := New(ctx, WithAddresses("a"), WithDialer(d.dial), WithFilter("tube =="))
		assert.ErrorIs(t, err, &Error{Kind: KindConfiguration})
		assert.Empty(t, d.dialed)
	})
}

func TestJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("sequential follows pool order", func(t *testing.T) {
		c, _ := setupClimber(t, 3, 2)
		jobs, err := enumerate.Collect(ctx, c.Jobs().Seq())
		require.NoError(t, err)
		assert.Equal(t, []found{
			{"a:11300", 3}, {"a:11300", 2}, {"a:11300", 1},
			{"b:11300", 2}, {"b:11300", 1},
		}, foundJobs(jobs))
	})

	t.Run("break stops before the next server", func(t *testing.T) {
		c, d := setupClimber(t, 3, 2)
		d.server("b:11300").ResetCalls()

		out, err := fanout.Each(ctx, c.Jobs(), func(j *job.Job) enumerate.Control[uint64] {
			return enumerate.Stop(j.ID())
		})
		require.NoError(t, err)
		assert.True(t, out.Stopped)
		assert.Equal(t, uint64(3), out.Value)
		assert.Equal(t, 0, d.server("b:11300").Calls(beanstalk.CmdPut))
	})

	t.Run("concurrent visits every job", func(t *testing.T) {
		c, _ := setupClimber(t, 3, 2)
		var (
			mu  sync.Mutex
			got []found
		)
		err := c.Jobs().EachConcurrent(ctx, func(j *job.Job) error {
			mu.Lock()
			got = append(got, found{j.Addr(), j.ID()})
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		sort.Slice(got, func(i, j int) bool {
			if got[i].addr != got[j].addr {
				return got[i].addr < got[j].addr
			}
			return got[i].id < got[j].id
		})
		assert.Equal(t, []found{
			{"a:11300", 1}, {"a:11300", 2}, {"a:11300", 3},
			{"b:11300", 1}, {"b:11300", 2},
		}, got)
	})

	t.Run("scan spans use the tracer provider", func(t *testing.T) {
		sr := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
		c, _ := setupClimber(t, 1, 1, WithTracerProvider(tp))

		_, err := enumerate.Collect(ctx, c.Jobs().Seq())
		require.NoError(t, err)
		assert.Len(t, sr.Ended(), 2)
	})
}

func TestMaxJobIDs(t *testing.T) {
	c, d := setupClimber(t, 3, 1)
	ctx := context.Background()

	ids, err := c.MaxJobIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"a:11300": 4, "b:11300": 2}, ids)

	ids, err = c.MaxJobIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"a:11300": 5, "b:11300": 3}, ids)

	require.NoError(t, d.clients["b:11300"].Close())
	_, err = c.MaxJobIDs(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "b:11300", cerr.Context["addr"])
}

func TestFindJobs(t *testing.T) {
	ctx := context.Background()
	c, d := setupClimber(t, 2, 1)
	emailA := d.server("a:11300").Insert("emails", []byte("welcome"))
	emailB := d.server("b:11300").Insert("emails", []byte("receipt"))

	t.Run("matches in sequential order", func(t *testing.T) {
		jobs, err := c.FindJobs(ctx, `tube == "emails"`)
		require.NoError(t, err)
		assert.Equal(t, []found{{"a:11300", emailA}, {"b:11300", emailB}}, foundJobs(jobs))
	})

	t.Run("empty expression matches everything", func(t *testing.T) {
		jobs, err := c.FindJobs(ctx, "")
		require.NoError(t, err)
		assert.Len(t, jobs, 5)
	})

	t.Run("first match stops the scan", func(t *testing.T) {
		d.server("b:11300").ResetCalls()
		j, err := c.FindFirst(ctx, `body == "welcome"`)
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, found{"a:11300", emailA}, found{j.Addr(), j.ID()})
		assert.Equal(t, 0, d.server("b:11300").Calls(beanstalk.CmdPut))
	})

	t.Run("no match", func(t *testing.T) {
		j, err := c.FindFirst(ctx, `tube == "nothing"`)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := c.FindJobs(ctx, `tube ==`)
		assert.ErrorIs(t, err, &Error{Kind: KindValidation})
	})

	t.Run("configured filter", func(t *testing.T) {
		filtered, _ := setupClimber(t, 2, 2, WithFilter(`id == 1u`))
		jobs, err := filtered.FindJobs(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []found{{"a:11300", 1}, {"b:11300", 1}}, foundJobs(jobs))
	})
}

func TestTubeSummaries(t *testing.T) {
	c, d := setupClimber(t, 2, 3)
	d.server("b:11300").Insert("emails", []byte("x"))

	tubes, err := enumerate.Collect(context.Background(), c.Tubes().Seq())
	require.NoError(t, err)
	var names []string
	for _, tb := range tubes {
		names = append(names, tb.Name()+"@"+tb.Addr())
	}
	assert.Equal(t, []string{
		"default@a:11300", "stalk_climber@a:11300",
		"default@b:11300", "emails@b:11300", "stalk_climber@b:11300",
	}, names)

	summaries, err := c.TubeSummaries(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.Equal(t, "default", summaries[0].Name)
	assert.Equal(t, []string{"a:11300", "b:11300"}, summaries[0].Servers)
	assert.Equal(t, uint64(5), summaries[0].Stats["current-jobs-ready"])
	assert.Equal(t, "emails", summaries[1].Name)
	assert.Equal(t, []string{"b:11300"}, summaries[1].Servers)
	assert.Equal(t, "stalk_climber", summaries[2].Name)
}

func setupSink(t *testing.T) *audit.RedisSink {
	t.Helper()
	mr := miniredis.RunT(t)
	sink, err := audit.NewRedisSink(audit.RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestExport(t *testing.T) {
	ctx := context.Background()

	t.Run("writes every job and records the run", func(t *testing.T) {
		sink := setupSink(t)
		c, d := setupClimber(t, 3, 2)

		run, err := c.Export(ctx, sink)
		require.NoError(t, err)
		assert.Equal(t, 5, run.Jobs)
		assert.Equal(t, 0, run.Errors)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, []string{"a:11300", "b:11300"}, run.Servers)

		ids, err := sink.IDs(ctx, "a:11300")
		require.NoError(t, err)
		assert.Equal(t, []uint64{3, 2, 1}, ids)

		snap, err := sink.Get(ctx, "b:11300", 2)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, "b:11300/1", snap.Body)
		assert.Equal(t, "default", snap.Stats["tube"])

		recorded, err := sink.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.NotNil(t, recorded)
		assert.Equal(t, 5, recorded.Jobs)

		t.Run("second run prunes vanished jobs", func(t *testing.T) {
			d.server("a:11300").Remove(2)

			run, err := c.Export(ctx, nil)
			assert.ErrorIs(t, err, ErrNoSink)
			assert.Zero(t, run.Jobs)

			run, err = c.Export(ctx, sink)
			require.NoError(t, err)
			assert.Equal(t, 4, run.Jobs)

			ids, err := sink.IDs(ctx, "a:11300")
			require.NoError(t, err)
			assert.Equal(t, []uint64{3, 1}, ids)
		})
	})

	t.Run("configured sink", func(t *testing.T) {
		sink := setupSink(t)
		c, _ := setupClimber(t, 1, 0, WithAuditSink(sink))

		run, err := c.Export(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, run.Jobs)
	})

	t.Run("failed scan skips pruning", func(t *testing.T) {
		sink := setupSink(t)
		c, d := setupClimber(t, 2, 2)
		_, err := c.Export(ctx, sink)
		require.NoError(t, err)

		d.server("a:11300").Remove(1)
		require.NoError(t, d.clients["b:11300"].Close())

		run, err := c.Export(ctx, sink)
		assert.ErrorIs(t, err, ErrClosed)
		assert.Equal(t, 1, run.Jobs)
		assert.Equal(t, 1, run.Errors)

		ids, err := sink.IDs(ctx, "a:11300")
		require.NoError(t, err)
		assert.Equal(t, []uint64{2, 1}, ids, "stale snapshot kept after a failed run")
	})
}

func TestHealth(t *testing.T) {
	c, d := setupClimber(t, 1, 1)
	ctx := context.Background()

	assert.True(t, c.Health(ctx).IsHealthy())

	require.NoError(t, d.clients["b:11300"].Close())
	status := c.Health(ctx)
	assert.True(t, status.IsUnhealthy())
}

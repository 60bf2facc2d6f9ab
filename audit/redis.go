package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zero-day-ai/climber/job"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// KeyPrefix prefixes every key. Default: "climber"
	KeyPrefix string

	// TTL expires job snapshots. Zero keeps them until pruned.
	TTL time.Duration
}

// RedisSink implements Sink using go-redis/v9.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink creates a new Redis sink with the given options.
func NewRedisSink(opts RedisOptions) (*RedisSink, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "climber"
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSink{client: client, prefix: opts.KeyPrefix, ttl: opts.TTL}, nil
}

// Write stores a snapshot as a hash and indexes its id per server.
func (s *RedisSink) Write(ctx context.Context, runID string, snap job.Snapshot) error {
	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal job stats: %w", err)
	}

	id := strconv.FormatUint(snap.ID, 10)
	jobKey := s.jobKey(snap.Addr, snap.ID)
	fields := map[string]any{
		"id":          id,
		"addr":        snap.Addr,
		"run_id":      runID,
		"body":        snap.Body,
		"stats":       string(stats),
		"captured_at": snap.CapturedAt.UTC().Format(time.RFC3339Nano),
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobKey, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, jobKey, s.ttl)
		}
		pipe.ZAdd(ctx, s.indexKey(snap.Addr), redis.Z{Score: float64(snap.ID), Member: id})
		pipe.SAdd(ctx, s.serversKey(), snap.Addr)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write job %s on %s: %w", id, snap.Addr, err)
	}

	return nil
}

// Get returns the stored snapshot of a job, or nil if none is stored.
func (s *RedisSink) Get(ctx context.Context, addr string, id uint64) (*job.Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(addr, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job %d on %s: %w", id, addr, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	snap := &job.Snapshot{ID: id, Addr: addr, Body: fields["body"]}
	if raw := fields["stats"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Stats); err != nil {
			return nil, fmt.Errorf("invalid stats for job %d on %s: %w", id, addr, err)
		}
	}
	if raw := fields["captured_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid captured_at for job %d on %s: %w", id, addr, err)
		}
		snap.CapturedAt = t
	}

	return snap, nil
}

// IDs returns the indexed job ids of a server in descending order.
func (s *RedisSink) IDs(ctx context.Context, addr string) ([]uint64, error) {
	members, err := s.client.ZRevRange(ctx, s.indexKey(addr), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job index for %s: %w", addr, err)
	}

	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q in index for %s: %w", m, addr, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Servers returns every address a snapshot was written for.
func (s *RedisSink) Servers(ctx context.Context) ([]string, error) {
	addrs, err := s.client.SMembers(ctx, s.serversKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read servers: %w", err)
	}
	return addrs, nil
}

// Prune removes every indexed job of a server whose id is not in keep and
// returns how many were removed.
func (s *RedisSink) Prune(ctx context.Context, addr string, keep []uint64) (int, error) {
	stored, err := s.IDs(ctx, addr)
	if err != nil {
		return 0, err
	}

	live := make(map[uint64]struct{}, len(keep))
	for _, id := range keep {
		live[id] = struct{}{}
	}

	var stale []uint64
	for _, id := range stored {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range stale {
			pipe.Del(ctx, s.jobKey(addr, id))
			pipe.ZRem(ctx, s.indexKey(addr), strconv.FormatUint(id, 10))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs on %s: %w", addr, err)
	}

	return len(stale), nil
}

// RecordRun stores the run summary and publishes it on the runs channel.
func (s *RedisSink) RecordRun(ctx context.Context, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.client.Set(ctx, s.runKey(run.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}

	if err := s.client.Publish(ctx, s.runsChannel(), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", s.runsChannel(), err)
	}

	return nil
}

// GetRun returns a stored run summary, or nil if none is stored.
func (s *RedisSink) GetRun(ctx context.Context, id string) (*Run, error) {
	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// SubscribeRuns delivers run summaries as RecordRun publishes them, until
// ctx is cancelled.
func (s *RedisSink) SubscribeRuns(ctx context.Context) (<-chan Run, error) {
	pubsub := s.client.Subscribe(ctx, s.runsChannel())

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", s.runsChannel(), err)
	}

	runs := make(chan Run)

	go func() {
		defer close(runs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var run Run
				if err := json.Unmarshal([]byte(msg.Payload), &run); err != nil {
					continue
				}

				select {
				case runs <- run:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return runs, nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) jobKey(addr string, id uint64) string {
	return formatKeyName(s.prefix, addr, "job", strconv.FormatUint(id, 10))
}

func (s *RedisSink) indexKey(addr string) string {
	return formatKeyName(s.prefix, addr, "jobs")
}

func (s *RedisSink) serversKey() string {
	return formatKeyName(s.prefix, "servers")
}

func (s *RedisSink) runKey(id string) string {
	return formatKeyName(s.prefix, "run", id)
}

func (s *RedisSink) runsChannel() string {
	return formatKeyName(s.prefix, "runs")
}

// formatKeyName ensures consistent key naming with the prefix:*:* pattern.
func formatKeyName(parts ...string) string {
	return strings.Join(parts, ":")
}

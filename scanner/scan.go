package scanner

import (
	"context"

	"github.com/zero-day-ai/climber/enumerate"
	"github.com/zero-day-ai/climber/job"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Jobs returns a sequence over every job currently on the server, in
// descending id order within each phase. Each run of the sequence is a fresh
// scan:
//
//  1. probe for the current max id
//  2. peek ids between the probe and the highest climbed id
//  3. revalidate jobs cached by earlier scans with a stats-job each
//  4. peek ids below the lowest climbed id down to 1
//
// Jobs cached in steps 2 and 4 are yielded as new *job.Job values; cached
// jobs that still exist in step 3 are yielded as the same values as before,
// without refetching their body or stats. Watermarks move with every id
// visited, so stopping early leaves state a later scan resumes from.
func (c *Connection) Jobs() enumerate.Seq[*job.Job] {
	return func(ctx context.Context, yield func(*job.Job) bool) (err error) {
		ctx, span := c.tracer.Start(ctx, "climber.scan",
			trace.WithAttributes(attribute.String("beanstalk.addr", c.Addr())),
		)
		yielded, evicted := 0, 0
		defer func() {
			span.SetAttributes(
				attribute.Int("climber.jobs_yielded", yielded),
				attribute.Int("climber.jobs_evicted", evicted),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
			c.logger.Debug("scan finished",
				"yielded", yielded,
				"evicted", evicted,
				"cached", len(c.cache),
				"min_climbed_id", c.minClimbed,
				"max_climbed_id", c.maxClimbed,
			)
		}()
		emit := func(j *job.Job) bool {
			yielded++
			return yield(j)
		}

		maxID, err := c.MaxJobID(ctx)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int64("climber.max_job_id", int64(maxID)))
		cached := c.CachedJobs()

		span.AddEvent("climber.scan.new")
		floor := c.maxClimbed
		for id := maxID - 1; id > floor; id-- {
			j, err := c.fetchAndCache(ctx, id)
			if err != nil {
				return err
			}
			if j != nil && !emit(j) {
				return nil
			}
		}

		span.AddEvent("climber.scan.revalidate")
		for _, j := range cached {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.metrics.add(ctx, c.metrics.existenceChecks)
			ok, err := j.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				delete(c.cache, j.ID())
				c.metrics.add(ctx, c.metrics.evictions)
				evicted++
				continue
			}
			if !emit(j) {
				return nil
			}
		}

		span.AddEvent("climber.scan.unexplored")
		for id := min(c.minClimbed-1, maxID-1); id > 0; id-- {
			j, err := c.fetchAndCache(ctx, id)
			if err != nil {
				return err
			}
			if j != nil && !emit(j) {
				return nil
			}
		}

		return nil
	}
}

// fetchAndCache peeks one id, caches the job if present and widens the
// watermarks to include the id either way.
func (c *Connection) fetchAndCache(ctx context.Context, id uint64) (*job.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.metrics.add(ctx, c.metrics.peeks)

	j, err := c.FetchJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j != nil {
		c.cache[id] = j
	}
	if id < c.minClimbed {
		c.minClimbed = id
	}
	if id > c.maxClimbed {
		c.maxClimbed = id
	}
	return j, nil
}

package job

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/zero-day-ai/climber/beanstalk"
)

// Status records which command produced a Job, or that it was deleted.
type Status string

const (
	StatusInserted Status = "INSERTED"
	StatusFound    Status = "FOUND"
	StatusOK       Status = "OK"
	StatusDeleted  Status = "DELETED"
)

// Job is one queue item on one server. The id is fixed at construction; the
// body is fetched at most once and the stats snapshot is refreshed according
// to each attribute's Freshness.
//
// A Job is not safe for concurrent use.
type Job struct {
	id      uint64
	client  beanstalk.Client
	body    []byte
	hasBody bool
	stats   Stats
	status  Status
}

// FromInsert builds a Job from a put reply, which carries only the id.
func FromInsert(client beanstalk.Client, id uint64) *Job {
	return &Job{id: id, client: client, status: StatusInserted}
}

// FromPeek builds a Job from a peek or reserve reply carrying id and body.
func FromPeek(client beanstalk.Client, id uint64, body []byte) *Job {
	return &Job{id: id, client: client, body: body, hasBody: true, status: StatusFound}
}

// FromStats builds a Job from a stats-job reply. The id is taken from the
// reply's id attribute and removed from the snapshot.
func FromStats(client beanstalk.Client, stats map[string]string) (*Job, error) {
	raw, ok := stats["id"]
	if !ok {
		return nil, fmt.Errorf("stats reply has no id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", raw, err)
	}
	snapshot := Stats(stats).clone()
	delete(snapshot, "id")
	return &Job{id: id, client: client, stats: snapshot, status: StatusOK}, nil
}

// Peek fetches the job with the given id by body. An absent job is reported
// as beanstalk.ErrNotFound.
func Peek(ctx context.Context, client beanstalk.Client, id uint64) (*Job, error) {
	body, err := client.Peek(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromPeek(client, id, body), nil
}

// Lookup fetches the job with the given id by stats, without its body.
func Lookup(ctx context.Context, client beanstalk.Client, id uint64) (*Job, error) {
	stats, err := client.StatsJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromStats(client, stats)
}

// ID returns the server-local job id.
func (j *Job) ID() uint64 {
	return j.id
}

// Addr returns the address of the server the job lives on.
func (j *Job) Addr() string {
	return j.client.Addr()
}

// Status returns the construction status, or StatusDeleted after Delete.
func (j *Job) Status() Status {
	return j.status
}

// Deleted reports whether Delete has been called on this Job.
func (j *Job) Deleted() bool {
	return j.status == StatusDeleted
}

// Body returns the job payload, peeking the server the first time only.
func (j *Job) Body(ctx context.Context) ([]byte, error) {
	if j.hasBody {
		return j.body, nil
	}
	if j.Deleted() {
		return nil, fmt.Errorf("job %d: %w", j.id, beanstalk.ErrNotFound)
	}
	body, err := j.client.Peek(ctx, j.id)
	if err != nil {
		return nil, err
	}
	j.body, j.hasBody = body, true
	return body, nil
}

// Stats returns the stats snapshot, fetching it when none is held or when
// refresh is set. The returned map is a copy.
func (j *Job) Stats(ctx context.Context, refresh bool) (Stats, error) {
	if j.stats != nil && !refresh {
		return j.stats.clone(), nil
	}
	if j.Deleted() {
		return nil, fmt.Errorf("job %d: %w", j.id, beanstalk.ErrNotFound)
	}
	raw, err := j.client.StatsJob(ctx, j.id)
	if err != nil {
		return nil, err
	}
	stats := Stats(raw).clone()
	delete(stats, "id")
	j.stats = stats
	return stats.clone(), nil
}

// Attr returns one stats attribute, honouring its declared freshness.
// Unknown attribute names are an error.
func (j *Job) Attr(ctx context.Context, name string) (string, error) {
	freshness, ok := Attributes[name]
	if !ok {
		return "", fmt.Errorf("unknown job attribute %q", name)
	}
	stats, err := j.Stats(ctx, freshness == Live)
	if err != nil {
		return "", err
	}
	return stats[name], nil
}

func (j *Job) uintAttr(ctx context.Context, name string) (uint64, error) {
	if _, err := j.Attr(ctx, name); err != nil {
		return 0, err
	}
	return j.stats.Uint(name)
}

func (j *Job) secondsAttr(ctx context.Context, name string) (time.Duration, error) {
	if _, err := j.Attr(ctx, name); err != nil {
		return 0, err
	}
	return j.stats.Seconds(name)
}

// Age returns how long ago the job was put.
func (j *Job) Age(ctx context.Context) (time.Duration, error) {
	return j.secondsAttr(ctx, AttrAge)
}

// Delay returns the job's delay.
func (j *Job) Delay(ctx context.Context) (time.Duration, error) {
	return j.secondsAttr(ctx, AttrDelay)
}

// TimeLeft returns the time until a reserved or delayed job changes state.
func (j *Job) TimeLeft(ctx context.Context) (time.Duration, error) {
	return j.secondsAttr(ctx, AttrTimeLeft)
}

// TTR returns the job's time-to-run.
func (j *Job) TTR(ctx context.Context) (time.Duration, error) {
	return j.secondsAttr(ctx, AttrTTR)
}

// Priority returns the job priority; lower is more urgent.
func (j *Job) Priority(ctx context.Context) (uint32, error) {
	n, err := j.uintAttr(ctx, AttrPriority)
	return uint32(n), err
}

// State returns ready, delayed, reserved or buried.
func (j *Job) State(ctx context.Context) (string, error) {
	return j.Attr(ctx, AttrState)
}

// Tube returns the name of the tube holding the job.
func (j *Job) Tube(ctx context.Context) (string, error) {
	return j.Attr(ctx, AttrTube)
}

// Reserves returns how many times the job has been reserved.
func (j *Job) Reserves(ctx context.Context) (uint64, error) {
	return j.uintAttr(ctx, AttrReserves)
}

// Timeouts returns how many reservations of the job timed out.
func (j *Job) Timeouts(ctx context.Context) (uint64, error) {
	return j.uintAttr(ctx, AttrTimeouts)
}

// Releases returns how many times the job has been released.
func (j *Job) Releases(ctx context.Context) (uint64, error) {
	return j.uintAttr(ctx, AttrReleases)
}

// Buries returns how many times the job has been buried.
func (j *Job) Buries(ctx context.Context) (uint64, error) {
	return j.uintAttr(ctx, AttrBuries)
}

// Kicks returns how many times the job has been kicked.
func (j *Job) Kicks(ctx context.Context) (uint64, error) {
	return j.uintAttr(ctx, AttrKicks)
}

// Delete removes the job from the server. A job already gone is treated as
// deleted. Afterwards the Job holds no body or stats and Exists is false
// without a round trip.
func (j *Job) Delete(ctx context.Context) error {
	if j.Deleted() {
		return nil
	}
	if err := j.client.Delete(ctx, j.id); err != nil && !beanstalk.IsNotFound(err) {
		return err
	}
	j.status = StatusDeleted
	j.body, j.hasBody = nil, false
	j.stats = nil
	return nil
}

// Exists reports whether the job is still on the server. The check is a
// stats-job round trip, which also refreshes the stats snapshot.
func (j *Job) Exists(ctx context.Context) (bool, error) {
	if j.Deleted() {
		return false, nil
	}
	_, err := j.Stats(ctx, true)
	if beanstalk.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// String implements fmt.Stringer.
func (j *Job) String() string {
	return fmt.Sprintf("job %d@%s (%s)", j.id, j.client.Addr(), j.status)
}

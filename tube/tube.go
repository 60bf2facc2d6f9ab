package tube

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/zero-day-ai/climber/beanstalk"
)

// Stats attribute names reported by stats-tube.
const (
	AttrCmdDelete           = "cmd-delete"
	AttrCmdPauseTube        = "cmd-pause-tube"
	AttrCurrentJobsBuried   = "current-jobs-buried"
	AttrCurrentJobsDelayed  = "current-jobs-delayed"
	AttrCurrentJobsReady    = "current-jobs-ready"
	AttrCurrentJobsReserved = "current-jobs-reserved"
	AttrCurrentJobsUrgent   = "current-jobs-urgent"
	AttrCurrentUsing        = "current-using"
	AttrCurrentWaiting      = "current-waiting"
	AttrCurrentWatching     = "current-watching"
	AttrName                = "name"
	AttrPause               = "pause"
	AttrPauseTimeLeft       = "pause-time-left"
	AttrTotalJobs           = "total-jobs"
)

// Attributes lists every stats-tube attribute in name order.
var Attributes = []string{
	AttrCmdDelete,
	AttrCmdPauseTube,
	AttrCurrentJobsBuried,
	AttrCurrentJobsDelayed,
	AttrCurrentJobsReady,
	AttrCurrentJobsReserved,
	AttrCurrentJobsUrgent,
	AttrCurrentUsing,
	AttrCurrentWaiting,
	AttrCurrentWatching,
	AttrName,
	AttrPause,
	AttrPauseTimeLeft,
	AttrTotalJobs,
}

// Tube is a named tube on one server.
type Tube struct {
	name   string
	client beanstalk.Client
	stats  map[string]string
}

// New returns a Tube bound to client. No command is sent.
func New(client beanstalk.Client, name string) *Tube {
	return &Tube{name: name, client: client}
}

// List returns every tube currently on the server behind client.
func List(ctx context.Context, client beanstalk.Client) ([]*Tube, error) {
	names, err := client.ListTubes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tubes on %s: %w", client.Addr(), err)
	}
	tubes := make([]*Tube, len(names))
	for i, name := range names {
		tubes[i] = New(client, name)
	}
	return tubes, nil
}

// Name returns the tube name.
func (t *Tube) Name() string {
	return t.name
}

// Addr returns the address of the server the tube lives on.
func (t *Tube) Addr() string {
	return t.client.Addr()
}

// Stats returns the stats-tube snapshot. With refresh false a previously
// fetched snapshot is reused.
func (t *Tube) Stats(ctx context.Context, refresh bool) (map[string]string, error) {
	if refresh || t.stats == nil {
		stats, err := t.client.StatsTube(ctx, t.name)
		if err != nil {
			return nil, err
		}
		t.stats = stats
	}
	out := make(map[string]string, len(t.stats))
	for k, v := range t.stats {
		out[k] = v
	}
	return out, nil
}

// Uint returns a numeric stats attribute, refreshing the snapshot first.
func (t *Tube) Uint(ctx context.Context, name string) (uint64, error) {
	return t.uint(ctx, name, true)
}

func (t *Tube) uint(ctx context.Context, name string, refresh bool) (uint64, error) {
	stats, err := t.Stats(ctx, refresh)
	if err != nil {
		return 0, err
	}
	raw, ok := stats[name]
	if !ok {
		return 0, fmt.Errorf("tube stats attribute %q missing", name)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tube stats attribute %q: %w", name, err)
	}
	return n, nil
}

func (t *Tube) CmdDelete(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCmdDelete)
}

func (t *Tube) CmdPauseTube(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCmdPauseTube)
}

func (t *Tube) CurrentJobsBuried(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentJobsBuried)
}

func (t *Tube) CurrentJobsDelayed(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentJobsDelayed)
}

func (t *Tube) CurrentJobsReady(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentJobsReady)
}

func (t *Tube) CurrentJobsReserved(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentJobsReserved)
}

// CurrentJobsUrgent counts ready jobs with a priority below 1024.
func (t *Tube) CurrentJobsUrgent(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentJobsUrgent)
}

func (t *Tube) CurrentUsing(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentUsing)
}

func (t *Tube) CurrentWaiting(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentWaiting)
}

func (t *Tube) CurrentWatching(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrCurrentWatching)
}

// PauseTimeLeft is the time until the tube stops being paused.
func (t *Tube) PauseTimeLeft(ctx context.Context) (time.Duration, error) {
	n, err := t.Uint(ctx, AttrPauseTimeLeft)
	return time.Duration(n) * time.Second, err
}

func (t *Tube) TotalJobs(ctx context.Context) (uint64, error) {
	return t.Uint(ctx, AttrTotalJobs)
}

// PauseTime is the duration the tube is currently paused for. Unlike the
// other accessors it reuses the last snapshot unless refresh is set.
func (t *Tube) PauseTime(ctx context.Context, refresh bool) (time.Duration, error) {
	n, err := t.uint(ctx, AttrPause, refresh)
	return time.Duration(n) * time.Second, err
}

// Exists reports whether the server still knows the tube. It uses
// stats-tube rather than list-tubes, whose reply grows with the number of
// tubes, and keeps the fresh snapshot.
func (t *Tube) Exists(ctx context.Context) (bool, error) {
	_, err := t.Stats(ctx, true)
	if beanstalk.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// String implements fmt.Stringer.
func (t *Tube) String() string {
	return fmt.Sprintf("tube %s on %s", t.name, t.Addr())
}

// Summary is the stats of one tube name summed across servers.
type Summary struct {
	Name    string            `json:"name"`
	Servers []string          `json:"servers"`
	Stats   map[string]uint64 `json:"stats"`
}

// Merge refreshes the stats of every tube and sums numeric attributes per
// tube name. Tubes that disappeared since being listed are skipped. The
// result is ordered by name.
func Merge(ctx context.Context, tubes []*Tube) ([]Summary, error) {
	byName := make(map[string]*Summary)
	for _, t := range tubes {
		stats, err := t.Stats(ctx, true)
		if beanstalk.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s, ok := byName[t.name]
		if !ok {
			s = &Summary{Name: t.name, Stats: make(map[string]uint64)}
			byName[t.name] = s
		}
		s.Servers = append(s.Servers, t.Addr())
		for k, raw := range stats {
			if k == AttrName {
				continue
			}
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				continue
			}
			s.Stats[k] += n
		}
	}

	out := make([]Summary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

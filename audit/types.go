package audit

import (
	"context"
	"time"

	"github.com/zero-day-ai/climber/job"
)

// Sink receives job snapshots produced by an export run.
//
// Write is called from one goroutine per server during concurrent export,
// so implementations must be safe for concurrent use.
type Sink interface {
	// Write stores one job snapshot taken during run runID.
	Write(ctx context.Context, runID string, snap job.Snapshot) error

	// RecordRun stores the summary of a finished run.
	RecordRun(ctx context.Context, run Run) error

	// Close releases the sink's resources.
	Close() error
}

// Run summarizes one export over every server.
type Run struct {
	// ID is a UUID shared by every snapshot written during the run
	ID string `json:"id"`

	// Servers lists the addresses the run visited
	Servers []string `json:"servers"`

	// Jobs is the number of snapshots written
	Jobs int `json:"jobs"`

	// Errors is the number of jobs or servers that failed
	Errors int `json:"errors"`

	// StartedAt is the Unix timestamp in milliseconds when the run started
	StartedAt int64 `json:"started_at"`

	// FinishedAt is the Unix timestamp in milliseconds when the run ended
	FinishedAt int64 `json:"finished_at"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return time.Duration(r.FinishedAt-r.StartedAt) * time.Millisecond
}

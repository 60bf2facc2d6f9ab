package job

import (
	"context"
	"time"
)

// Snapshot is a point-in-time copy of a job suitable for export.
type Snapshot struct {
	// ID is the server-local job id
	ID uint64 `json:"id"`

	// Addr is the address of the server holding the job
	Addr string `json:"addr"`

	// Body is the job payload
	Body string `json:"body"`

	// Stats is the stats-job reply without the id field
	Stats Stats `json:"stats"`

	// CapturedAt is when the stats were read
	CapturedAt time.Time `json:"captured_at"`
}

// Snapshot captures the job's body and a freshly read stats snapshot.
func (j *Job) Snapshot(ctx context.Context) (Snapshot, error) {
	body, err := j.Body(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	stats, err := j.Stats(ctx, true)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:         j.id,
		Addr:       j.client.Addr(),
		Body:       string(body),
		Stats:      stats,
		CapturedAt: time.Now(),
	}, nil
}

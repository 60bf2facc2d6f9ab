package beanstalk

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the server has no item for the requested job id
// or tube name.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by clients used after Close.
var ErrClosed = errors.New("beanstalk client is closed")

// DefaultPort is the port assumed when an address does not name one.
const DefaultPort = 11300

// Client defines the command primitive used to talk to one queue server.
//
// Every method maps onto a single protocol command. Absence is reported as
// ErrNotFound (possibly wrapped); any other error is a transport or protocol
// failure and is returned unchanged to the caller.
type Client interface {
	// Put inserts a job into the currently used tube and returns its id.
	Put(ctx context.Context, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error)

	// Peek returns the body of the job with the given id.
	Peek(ctx context.Context, id uint64) ([]byte, error)

	// StatsJob returns the stats-job attributes of the job with the given id.
	StatsJob(ctx context.Context, id uint64) (map[string]string, error)

	// Delete removes the job with the given id.
	Delete(ctx context.Context, id uint64) error

	// Use selects the tube subsequent Put calls insert into.
	Use(ctx context.Context, tube string) error

	// ListTubes returns the names of all tubes known to the server.
	ListTubes(ctx context.Context) ([]string, error)

	// StatsTube returns the stats-tube attributes of the named tube.
	StatsTube(ctx context.Context, name string) (map[string]string, error)

	// Addr returns the host:port this client talks to.
	Addr() string

	// Close releases the underlying connection.
	Close() error
}

// IsNotFound reports whether err signals an absent job or tube.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

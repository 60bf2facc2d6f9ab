package beanstalk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	bs "github.com/beanstalkd/go-beanstalk"
)

// Options configures a network connection to a beanstalkd server.
type Options struct {
	// Addr is the server address in host:port form.
	Addr string

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration

	// OpTimeout bounds each command round trip when the context carries no
	// deadline of its own. Zero means no per-command deadline.
	OpTimeout time.Duration
}

// Conn implements Client over a single TCP connection using go-beanstalk.
//
// Commands are serialized by an internal mutex, so a Conn may be shared by
// goroutines, but every command still occupies the one connection.
type Conn struct {
	mu   sync.Mutex
	nc   net.Conn
	conn *bs.Conn
	tube *bs.Tube
	addr string
	opts Options

	closed bool
}

// Dial connects to the server described by opts.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("beanstalk address cannot be empty")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to beanstalkd at %s: %w", opts.Addr, err)
	}

	conn := bs.NewConn(nc)
	return &Conn{
		nc:   nc,
		conn: conn,
		tube: bs.NewTube(conn, "default"),
		addr: opts.Addr,
		opts: opts,
	}, nil
}

// Addr returns the address the connection was dialed with.
func (c *Conn) Addr() string {
	return c.addr
}

// Put inserts a job into the used tube.
func (c *Conn) Put(ctx context.Context, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error) {
	var id uint64
	err := c.do(ctx, func() error {
		var err error
		id, err = c.tube.Put(body, pri, delay, ttr)
		return err
	})
	return id, err
}

// Peek returns the body of a job.
func (c *Conn) Peek(ctx context.Context, id uint64) ([]byte, error) {
	var body []byte
	err := c.do(ctx, func() error {
		var err error
		body, err = c.conn.Peek(id)
		return err
	})
	return body, err
}

// StatsJob returns the stats of a job.
func (c *Conn) StatsJob(ctx context.Context, id uint64) (map[string]string, error) {
	var stats map[string]string
	err := c.do(ctx, func() error {
		var err error
		stats, err = c.conn.StatsJob(id)
		return err
	})
	return stats, err
}

// Delete removes a job.
func (c *Conn) Delete(ctx context.Context, id uint64) error {
	return c.do(ctx, func() error {
		return c.conn.Delete(id)
	})
}

// Use switches the tube Put inserts into. go-beanstalk issues the use
// command lazily on the next put.
func (c *Conn) Use(ctx context.Context, tube string) error {
	if tube == "" {
		return fmt.Errorf("tube name cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.tube = bs.NewTube(c.conn, tube)
	return nil
}

// ListTubes returns every tube the server knows about.
func (c *Conn) ListTubes(ctx context.Context) ([]string, error) {
	var tubes []string
	err := c.do(ctx, func() error {
		var err error
		tubes, err = c.conn.ListTubes()
		return err
	})
	return tubes, err
}

// StatsTube returns the stats of a tube.
func (c *Conn) StatsTube(ctx context.Context, name string) (map[string]string, error) {
	var stats map[string]string
	err := c.do(ctx, func() error {
		var err error
		stats, err = bs.NewTube(c.conn, name).Stats()
		return err
	})
	return stats, err
}

// Close closes the network connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// do runs one command under the connection lock with the context deadline
// applied to the socket, translating go-beanstalk's not-found reply.
func (c *Conn) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.opts.OpTimeout > 0 {
		deadline, ok = time.Now().Add(c.opts.OpTimeout), true
	}
	if ok {
		if err := c.nc.SetDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set deadline: %w", err)
		}
		defer c.nc.SetDeadline(time.Time{})
	}

	return translateError(fn())
}

// translateError maps go-beanstalk's NOT_FOUND reply onto ErrNotFound while
// keeping the original error reachable through Unwrap.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var connErr bs.ConnError
	if errors.As(err, &connErr) && connErr.Err == bs.ErrNotFound {
		return fmt.Errorf("%s: %w", connErr.Op, ErrNotFound)
	}
	if errors.Is(err, bs.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

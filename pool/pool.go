package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zero-day-ai/climber/beanstalk"
	"github.com/zero-day-ai/climber/scanner"
)

// Dialer opens a client for one host:port address.
type Dialer func(ctx context.Context, addr string) (beanstalk.Client, error)

// TCPDialer returns a Dialer that connects over TCP with the given timeouts.
func TCPDialer(dialTimeout, opTimeout time.Duration) Dialer {
	return func(ctx context.Context, addr string) (beanstalk.Client, error) {
		return beanstalk.Dial(ctx, beanstalk.Options{
			Addr:        addr,
			DialTimeout: dialTimeout,
			OpTimeout:   opTimeout,
		})
	}
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	dialer      Dialer
	testTube    string
	logger      *slog.Logger
	scannerOpts []scanner.Option
}

// WithDialer replaces the TCP dialer, for example with MemoryServer clients
// in tests.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithTestTube sets the private probe tube on every connection.
func WithTestTube(name string) Option {
	return func(o *options) {
		o.testTube = name
	}
}

// WithLogger sets the logger passed down to every connection.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithScannerOptions appends options applied to every connection.
func WithScannerOptions(opts ...scanner.Option) Option {
	return func(o *options) {
		o.scannerOpts = append(o.scannerOpts, opts...)
	}
}

// Pool is an ordered, fixed set of connections, one per address.
type Pool struct {
	conns  []*scanner.Connection
	logger *slog.Logger
}

// New resolves specs (see Resolve) and opens one connection per address.
// Address errors are reported before anything is dialed. If any dial
// fails, connections already opened are closed.
func New(ctx context.Context, specs []string, opts ...Option) (*Pool, error) {
	o := &options{
		dialer:   TCPDialer(0, 0),
		testTube: scanner.DefaultTestTube,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	addrs, err := Resolve(specs...)
	if err != nil {
		return nil, err
	}

	p := &Pool{logger: o.logger}
	scannerOpts := append([]scanner.Option{
		scanner.WithTestTube(o.testTube),
		scanner.WithLogger(o.logger),
	}, o.scannerOpts...)

	for _, addr := range addrs {
		client, err := o.dialer(ctx, addr)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
		}
		conn, err := scanner.New(ctx, client, scannerOpts...)
		if err != nil {
			_ = client.Close()
			p.Close()
			return nil, err
		}
		p.conns = append(p.conns, conn)
	}

	o.logger.Debug("connection pool ready", "addresses", addrs)
	return p, nil
}

// Connections returns the connections in address order.
func (p *Pool) Connections() []*scanner.Connection {
	return append([]*scanner.Connection(nil), p.conns...)
}

// Addresses returns the host:port of every connection in order.
func (p *Pool) Addresses() []string {
	addrs := make([]string, len(p.conns))
	for i, c := range p.conns {
		addrs[i] = c.Addr()
	}
	return addrs
}

// Len returns the number of connections.
func (p *Pool) Len() int {
	return len(p.conns)
}

// Close closes every connection and returns their errors joined.
func (p *Pool) Close() error {
	var errs []error
	for _, c := range p.conns {
		if err := c.Close(); err != nil {
			p.logger.Warn("failed to close connection", "addr", c.Addr(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

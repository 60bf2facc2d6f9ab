package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zero-day-ai/climber/enumerate"
	"github.com/zero-day-ai/climber/scanner"
)

// Strategy selects the per-connection operation an Enumerable fans out.
type Strategy[T any] interface {
	// Name identifies the element kind in logs and errors.
	Name() string

	// Scan returns the sequence of elements held by one connection.
	Scan(conn *scanner.Connection) enumerate.Seq[T]
}

// StrategyFunc adapts a function to a Strategy.
type StrategyFunc[T any] struct {
	Kind string
	Fn   func(conn *scanner.Connection) enumerate.Seq[T]
}

func (s StrategyFunc[T]) Name() string { return s.Kind }

func (s StrategyFunc[T]) Scan(conn *scanner.Connection) enumerate.Seq[T] { return s.Fn(conn) }

// Enumerable presents a fixed list of connections as one logical source of
// T, either sequentially in connection order or concurrently.
type Enumerable[T any] struct {
	conns    []*scanner.Connection
	strategy Strategy[T]
}

// New returns an Enumerable over conns. The slice is copied; its order is
// the order of sequential enumeration.
func New[T any](conns []*scanner.Connection, strategy Strategy[T]) *Enumerable[T] {
	return &Enumerable[T]{
		conns:    append([]*scanner.Connection(nil), conns...),
		strategy: strategy,
	}
}

// Strategy returns the per-connection operation.
func (e *Enumerable[T]) Strategy() Strategy[T] {
	return e.strategy
}

// Connections returns the connections in enumeration order.
func (e *Enumerable[T]) Connections() []*scanner.Connection {
	return append([]*scanner.Connection(nil), e.conns...)
}

// Seq returns the sequential fan-out: every element of the first
// connection, then every element of the second, and so on. Stopping the
// sequence stops the connection being scanned and never starts the rest.
func (e *Enumerable[T]) Seq() enumerate.Seq[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		for _, conn := range e.conns {
			stopped := false
			err := e.strategy.Scan(conn)(ctx, func(v T) bool {
				if !yield(v) {
					stopped = true
					return false
				}
				return true
			})
			if err != nil {
				return fmt.Errorf("%s on %s: %w", e.strategy.Name(), conn.Addr(), err)
			}
			if stopped {
				return nil
			}
		}
		return nil
	}
}

// Each runs the sequential fan-out through enumerate.Each.
func Each[T, R any](ctx context.Context, e *Enumerable[T], fn func(T) enumerate.Control[R]) (enumerate.Outcome[T, R], error) {
	return enumerate.Each(ctx, e.Seq(), fn)
}

// EachConcurrent scans every connection in its own goroutine and calls fn
// for every element, then waits for all of them. There is no early stop:
// an error from fn is recorded and the scan moves on to the next element.
// A scan that fails ends its own goroutine only. All recorded errors are
// returned joined.
//
// fn is called from several goroutines at once and must be safe for that.
// Use it for total-visitation side effects such as deleting or exporting
// every job.
func (e *Enumerable[T]) EachConcurrent(ctx context.Context, fn func(T) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, conn := range e.conns {
		wg.Add(1)
		go func(conn *scanner.Connection) {
			defer wg.Done()
			err := e.strategy.Scan(conn)(ctx, func(v T) bool {
				if err := fn(v); err != nil {
					record(fmt.Errorf("%s on %s: %w", e.strategy.Name(), conn.Addr(), err))
				}
				return true
			})
			if err != nil {
				record(fmt.Errorf("%s on %s: %w", e.strategy.Name(), conn.Addr(), err))
			}
		}(conn)
	}

	wg.Wait()
	return errors.Join(errs...)
}

package enumerate

import (
	"context"
	"iter"
)

// Seq is a finite, restartable producer. Each call runs the production from
// the start, passing elements to yield until yield returns false or the
// source is exhausted. The returned error reports producer failures only;
// a consumer stopping early is not an error.
type Seq[T any] func(ctx context.Context, yield func(T) bool) error

// Control is the consumer's verdict after each element: keep going, or stop
// with a result value.
type Control[R any] struct {
	stop  bool
	value R
}

// Continue asks for the next element.
func Continue[R any]() Control[R] {
	return Control[R]{}
}

// Stop ends the enumeration and makes value the result.
func Stop[R any](value R) Control[R] {
	return Control[R]{stop: true, value: value}
}

// Stopped reports whether c ends the enumeration.
func (c Control[R]) Stopped() bool {
	return c.stop
}

// Outcome is the result of Each. When the consumer stopped, Stopped is set
// and Value holds the value given to Stop. When the source ran dry, Seq holds
// the sequence so it can be composed further.
type Outcome[T, R any] struct {
	Stopped bool
	Value   R
	Seq     Seq[T]
}

// Each feeds every element of seq to fn until fn returns Stop or seq is
// exhausted. Production halts as soon as fn stops; no further element is
// produced.
func Each[T, R any](ctx context.Context, seq Seq[T], fn func(T) Control[R]) (Outcome[T, R], error) {
	var out Outcome[T, R]
	err := seq(ctx, func(v T) bool {
		c := fn(v)
		if c.stop {
			out.Stopped = true
			out.Value = c.value
			return false
		}
		return true
	})
	if err != nil {
		return Outcome[T, R]{}, err
	}
	if !out.Stopped {
		out.Seq = seq
	}
	return out, nil
}

// Iter adapts seq to a range-over-func iterator. A producer error is yielded
// once as the final pair; breaking out of the loop stops production.
//
//	for j, err := range enumerate.Iter(ctx, conn.Jobs()) {
//		if err != nil {
//			return err
//		}
//		...
//	}
func Iter[T any](ctx context.Context, seq Seq[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		broke := false
		err := seq(ctx, func(v T) bool {
			if !yield(v, nil) {
				broke = true
				return false
			}
			return true
		})
		if err != nil && !broke {
			var zero T
			yield(zero, err)
		}
	}
}

// FromSlice returns a Seq over a fixed slice.
func FromSlice[T any](items []T) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		for _, v := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !yield(v) {
				return nil
			}
		}
		return nil
	}
}

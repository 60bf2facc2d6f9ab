package enumerate

import "context"

// Filter yields only the elements for which keep returns true.
func Filter[T any](seq Seq[T], keep func(T) bool) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		return seq(ctx, func(v T) bool {
			if !keep(v) {
				return true
			}
			return yield(v)
		})
	}
}

// Map transforms every element with fn.
func Map[T, U any](seq Seq[T], fn func(T) U) Seq[U] {
	return func(ctx context.Context, yield func(U) bool) error {
		return seq(ctx, func(v T) bool {
			return yield(fn(v))
		})
	}
}

// Take yields at most n elements, then stops the source.
func Take[T any](seq Seq[T], n int) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		if n <= 0 {
			return nil
		}
		seen := 0
		return seq(ctx, func(v T) bool {
			seen++
			if !yield(v) {
				return false
			}
			return seen < n
		})
	}
}

// Concat yields every element of each sequence in turn. A consumer stopping
// inside one sequence stops the whole chain.
func Concat[T any](seqs ...Seq[T]) Seq[T] {
	return func(ctx context.Context, yield func(T) bool) error {
		for _, seq := range seqs {
			stopped := false
			err := seq(ctx, func(v T) bool {
				if !yield(v) {
					stopped = true
					return false
				}
				return true
			})
			if err != nil {
				return err
			}
			if stopped {
				return nil
			}
		}
		return nil
	}
}

// Collect drains seq into a slice.
func Collect[T any](ctx context.Context, seq Seq[T]) ([]T, error) {
	var out []T
	err := seq(ctx, func(v T) bool {
		out = append(out, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first element matching pred and stops the source there.
func First[T any](ctx context.Context, seq Seq[T], pred func(T) bool) (T, bool, error) {
	out, err := Each(ctx, seq, func(v T) Control[T] {
		if pred(v) {
			return Stop(v)
		}
		return Continue[T]()
	})
	if err != nil || !out.Stopped {
		var zero T
		return zero, false, err
	}
	return out.Value, true, nil
}

// Any reports whether some element matches pred.
func Any[T any](ctx context.Context, seq Seq[T], pred func(T) bool) (bool, error) {
	_, found, err := First(ctx, seq, pred)
	return found, err
}

// Every reports whether all elements match pred, stopping at the first
// element that does not.
func Every[T any](ctx context.Context, seq Seq[T], pred func(T) bool) (bool, error) {
	_, found, err := First(ctx, seq, func(v T) bool { return !pred(v) })
	if err != nil {
		return false, err
	}
	return !found, nil
}

// Count returns the number of elements produced.
func Count[T any](ctx context.Context, seq Seq[T]) (int, error) {
	n := 0
	err := seq(ctx, func(T) bool {
		n++
		return true
	})
	return n, err
}

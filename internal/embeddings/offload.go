package embeddings

import "context"

// offload runs fn on its own goroutine so a blocking model call cannot hold
// up the caller past ctx. fn keeps running to completion if ctx ends first;
// its result is discarded.
func offload[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn()
		done <- result{val: val, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.val, r.err
	}
}

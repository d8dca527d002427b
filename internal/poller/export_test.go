package poller

import "context"

// RunJob polls an already-submitted job and returns it in its terminal state.
func RunJob[T any](ctx context.Context, jobID string, status StatusFunc[T], opts Options[T]) (*Job[T], error) {
	opts = opts.withDefaults()
	job := &Job[T]{ID: jobID, Kind: opts.Kind, State: StateSubmitted}
	_, err := run(ctx, job, status, opts)
	return job, err
}

// Package poller drives a long-running remote job from submission to a
// terminal outcome using bounded, fixed-interval status checks.
//
// The poller holds no package-level state. Every call to SubmitAndPoll or
// Poll owns its own Job, so any number of jobs can be polled concurrently.
package poller

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 5 * time.Second
)

// Kind identifies the class of remote operation a Job represents.
type Kind string

const (
	KindVideo          Kind = "video"
	KindPhoto          Kind = "photo"
	KindAvatarTraining Kind = "avatar_training"
	KindLegacyVideo    Kind = "legacy_video"
)

// State is the lifecycle state of a Job.
type State string

const (
	StateSubmitted            State = "submitted"
	StatePolling              State = "polling"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateTimedOut             State = "timed_out"
	StateSubmissionFailed     State = "submission_failed"
	StateStatusCheckExhausted State = "status_check_exhausted"
	StateCancelled            State = "cancelled"
)

// Terminal reports whether no further transitions can occur from s.
func (s State) Terminal() bool {
	switch s {
	case StateSubmitted, StatePolling:
		return false
	default:
		return true
	}
}

// RemoteState is the job state reported by one status check.
type RemoteState string

const (
	RemotePending   RemoteState = "pending"
	RemoteCompleted RemoteState = "completed"
	RemoteFailed    RemoteState = "failed"
)

// Status is the result-independent part of a Snapshot.
type Status struct {
	State    RemoteState
	Progress float64 // percentage in [0, 100]; 0 when the remote does not report one
	Message  string
}

// Snapshot is the point-in-time outcome of a single status check.
// Result is meaningful only when State is RemoteCompleted, Error only when
// State is RemoteFailed.
type Snapshot[T any] struct {
	Status
	Result T
	Error  string
}

// Job is one outstanding remote operation. It is mutated only by the
// polling loop and discarded once it reaches a terminal state. Result is set
// only in StateCompleted; Error is set in every other terminal state.
type Job[T any] struct {
	ID      string
	Kind    Kind
	State   State
	Attempt int
	Result  T
	Error   string
}

// end moves the job to a terminal state. A nil err means completion.
func (j *Job[T]) end(state State, result T, err error) {
	j.State = state
	if err != nil {
		j.Error = err.Error()
		return
	}
	j.Result = result
}

// SubmitFunc starts the remote job and returns its identifier.
type SubmitFunc func(ctx context.Context) (string, error)

// StatusFunc checks the remote job once. It must be safe to call repeatedly.
type StatusFunc[T any] func(ctx context.Context, jobID string) (Snapshot[T], error)

// Options tunes a single poll. The zero value is valid.
type Options[T any] struct {
	Kind        Kind
	MaxAttempts int
	Interval    time.Duration

	// OnProgress runs synchronously after every check that returns a pending
	// snapshot, before the inter-attempt wait. A panic inside it is not
	// recovered and aborts the poll.
	OnProgress func(Snapshot[T])

	Logger *slog.Logger
	Clock  Clock
}

func (o Options[T]) withDefaults() Options[T] {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = RealClock()
	}
	return o
}

// Result is the outcome of a job that reached the completed state.
type Result[T any] struct {
	JobID    string
	Result   T
	Attempts int
}

// SubmitAndPoll submits a job once and polls it until it completes, fails,
// times out, becomes unobservable or ctx is cancelled. Submission is never
// retried. Every failure is returned as one of the typed errors in this
// package.
func SubmitAndPoll[T any](ctx context.Context, submit SubmitFunc, status StatusFunc[T], opts Options[T]) (*Result[T], error) {
	opts = opts.withDefaults()

	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Kind: opts.Kind}
	}

	jobID, err := submit(ctx)
	if err != nil {
		opts.Logger.Error("job submission failed", "kind", opts.Kind, "error", err)
		return nil, &SubmissionError{Kind: opts.Kind, Err: err}
	}

	opts.Logger.Info("job submitted", "job_id", jobID, "kind", opts.Kind)
	return run(ctx, &Job[T]{ID: jobID, Kind: opts.Kind, State: StateSubmitted}, status, opts)
}

// Poll tracks a job that was already submitted elsewhere.
func Poll[T any](ctx context.Context, jobID string, status StatusFunc[T], opts Options[T]) (*Result[T], error) {
	opts = opts.withDefaults()
	return run(ctx, &Job[T]{ID: jobID, Kind: opts.Kind, State: StateSubmitted}, status, opts)
}

func run[T any](ctx context.Context, job *Job[T], status StatusFunc[T], opts Options[T]) (*Result[T], error) {
	log := opts.Logger.With("job_id", job.ID, "kind", job.Kind)

	// The in-flight check is allowed to finish after cancellation.
	checkCtx := context.WithoutCancel(ctx)

	var (
		consecutiveFailures int
		lastErr             error
		last                *Status
		zero                T
	)

	job.State = StatePolling
	for {
		if ctx.Err() != nil {
			err := &CancelledError{JobID: job.ID, Kind: job.Kind, Attempt: job.Attempt, Last: last}
			job.end(StateCancelled, zero, err)
			return nil, err
		}

		job.Attempt++
		snap, err := status(checkCtx, job.ID)
		if err != nil {
			consecutiveFailures++
			lastErr = err
			log.Warn("job status check failed", "attempt", job.Attempt, "consecutive_failures", consecutiveFailures, "error", err)
		} else {
			consecutiveFailures = 0
			switch snap.State {
			case RemoteCompleted:
				job.end(StateCompleted, snap.Result, nil)
				log.Info("job completed", "attempt", job.Attempt)
				return &Result[T]{JobID: job.ID, Result: snap.Result, Attempts: job.Attempt}, nil
			case RemoteFailed:
				err := &FailedError{JobID: job.ID, Kind: job.Kind, Attempt: job.Attempt, Message: snap.Error}
				job.end(StateFailed, zero, err)
				log.Warn("job failed", "attempt", job.Attempt, "remote_error", snap.Error)
				return nil, err
			default:
				s := snap.Status
				last = &s
				if opts.OnProgress != nil {
					opts.OnProgress(snap)
				}
			}
		}

		if job.Attempt >= opts.MaxAttempts {
			if consecutiveFailures >= opts.MaxAttempts {
				err := &StatusCheckError{JobID: job.ID, Kind: job.Kind, Attempts: job.Attempt, Err: lastErr}
				job.end(StateStatusCheckExhausted, zero, err)
				log.Error("job status unobservable", "attempts", job.Attempt, "error", lastErr)
				return nil, err
			}
			timeout := &TimeoutError{JobID: job.ID, Kind: job.Kind, Attempts: job.Attempt}
			if consecutiveFailures > 0 {
				timeout.LastErr = lastErr
			}
			job.end(StateTimedOut, zero, timeout)
			log.Warn("job timed out", "attempts", job.Attempt)
			return nil, timeout
		}

		select {
		case <-ctx.Done():
			err := &CancelledError{JobID: job.ID, Kind: job.Kind, Attempt: job.Attempt, Last: last}
			job.end(StateCancelled, zero, err)
			log.Info("job polling cancelled", "attempt", job.Attempt)
			return nil, err
		case <-opts.Clock.After(opts.Interval):
		}
	}
}

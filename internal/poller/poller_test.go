package poller_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/lingocast/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

// fakeClock fires immediately and accumulates the simulated wait time.
type fakeClock struct {
	mu      sync.Mutex
	elapsed time.Duration
	waits   int
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.elapsed += d
	c.waits++
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0).Add(c.elapsed)
	return ch
}

func (c *fakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// blockingClock never fires; it signals every time a wait begins.
type blockingClock struct {
	waiting chan struct{}
}

func (c *blockingClock) After(_ time.Duration) <-chan time.Time {
	c.waiting <- struct{}{}
	return make(chan time.Time)
}

// scriptedStatus replays a fixed sequence of outcomes, repeating the last one.
type scriptedStatus struct {
	mu    sync.Mutex
	steps []step
	calls int
	ids   []string
}

type step struct {
	snap poller.Snapshot[string]
	err  error
}

func pending() step { return step{snap: snap(poller.RemotePending, "", "")} }
func completed(result string) step {
	return step{snap: snap(poller.RemoteCompleted, result, "")}
}
func failed(msg string) step   { return step{snap: snap(poller.RemoteFailed, "", msg)} }
func transient(err error) step { return step{err: err} }

func snap(state poller.RemoteState, result, errMsg string) poller.Snapshot[string] {
	return poller.Snapshot[string]{Status: poller.Status{State: state}, Result: result, Error: errMsg}
}

func (s *scriptedStatus) fn(_ context.Context, jobID string) (poller.Snapshot[string], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, jobID)
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].snap, s.steps[i].err
}

func (s *scriptedStatus) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func submitOK(id string) poller.SubmitFunc {
	return func(_ context.Context) (string, error) { return id, nil }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func opts(maxAttempts int, clock poller.Clock) poller.Options[string] {
	return poller.Options[string]{
		Kind:        poller.KindVideo,
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		Logger:      quietLogger(),
		Clock:       clock,
	}
}

// ─── completion / failure / timeout ──────────────────────────────────────────

func TestSubmitAndPoll_ExampleScenario(t *testing.T) {
	clock := &fakeClock{}
	status := &scriptedStatus{steps: []step{pending(), pending(), completed("https://x/video.mp4")}}

	var progress []poller.Snapshot[string]
	o := opts(3, clock)
	o.OnProgress = func(s poller.Snapshot[string]) { progress = append(progress, s) }

	res, err := poller.SubmitAndPoll(context.Background(), submitOK("job-1"), status.fn, o)
	require.NoError(t, err)

	assert.Equal(t, "job-1", res.JobID)
	assert.Equal(t, "https://x/video.mp4", res.Result)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, status.Calls())
	assert.Len(t, progress, 2)
	assert.GreaterOrEqual(t, clock.Elapsed(), 2*time.Second)
	assert.Equal(t, []string{"job-1", "job-1", "job-1"}, status.ids)
}

func TestSubmitAndPoll_CompletesOnFirstCheckWithoutDelay(t *testing.T) {
	clock := &fakeClock{}
	status := &scriptedStatus{steps: []step{completed("done")}}

	res, err := poller.SubmitAndPoll(context.Background(), submitOK("job-1"), status.fn, opts(5, clock))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, time.Duration(0), clock.Elapsed())
}

func TestSubmitAndPoll_CompletedOnAttemptK(t *testing.T) {
	for k := 1; k <= 5; k++ {
		clock := &fakeClock{}
		steps := make([]step, 0, k)
		for i := 1; i < k; i++ {
			steps = append(steps, pending())
		}
		steps = append(steps, completed("r"))
		status := &scriptedStatus{steps: steps}

		progressCalls := 0
		o := opts(5, clock)
		o.OnProgress = func(poller.Snapshot[string]) { progressCalls++ }

		res, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, o)
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, k, status.Calls(), "k=%d", k)
		assert.Equal(t, k-1, progressCalls, "k=%d", k)
		assert.Equal(t, k, res.Attempts, "k=%d", k)
	}
}

func TestSubmitAndPoll_AlwaysPendingTimesOut(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 7} {
		status := &scriptedStatus{steps: []step{pending()}}

		_, err := poller.SubmitAndPoll(context.Background(), submitOK("job-t"), status.fn, opts(maxAttempts, &fakeClock{}))
		require.Error(t, err)
		assert.ErrorIs(t, err, poller.ErrJobTimedOut)

		var te *poller.TimeoutError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "job-t", te.JobID)
		assert.Equal(t, maxAttempts, te.Attempts)
		assert.Nil(t, te.LastErr)
		assert.Equal(t, maxAttempts, status.Calls())
	}
}

func TestSubmitAndPoll_RemoteFailure(t *testing.T) {
	status := &scriptedStatus{steps: []step{pending(), failed("avatar not found")}}

	_, err := poller.SubmitAndPoll(context.Background(), submitOK("job-f"), status.fn, opts(10, &fakeClock{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, poller.ErrJobFailed)

	var fe *poller.FailedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "job-f", fe.JobID)
	assert.Equal(t, "avatar not found", fe.Message)
	assert.Equal(t, 2, fe.Attempt)
	assert.Equal(t, 2, status.Calls())
}

func TestSubmitAndPoll_TerminalOnLastAttemptWinsOverTimeout(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		status := &scriptedStatus{steps: []step{pending(), pending(), completed("ok")}}
		res, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, opts(3, &fakeClock{}))
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Result)
	})
	t.Run("failed", func(t *testing.T) {
		status := &scriptedStatus{steps: []step{pending(), pending(), failed("bad script")}}
		_, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, opts(3, &fakeClock{}))
		assert.ErrorIs(t, err, poller.ErrJobFailed)
		assert.NotErrorIs(t, err, poller.ErrJobTimedOut)
	})
}

// ─── submission ──────────────────────────────────────────────────────────────

func TestSubmitAndPoll_SubmissionFailure(t *testing.T) {
	cause := errors.New("401 unauthorized")
	status := &scriptedStatus{steps: []step{completed("never")}}

	_, err := poller.SubmitAndPoll(context.Background(),
		func(_ context.Context) (string, error) { return "", cause },
		status.fn, opts(3, &fakeClock{}))

	require.Error(t, err)
	assert.ErrorIs(t, err, poller.ErrSubmissionFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, status.Calls())
}

// ─── transient status failures ───────────────────────────────────────────────

func TestSubmitAndPoll_TransientFailuresThenCompleted(t *testing.T) {
	boom := errors.New("connection reset")
	status := &scriptedStatus{steps: []step{transient(boom), transient(boom), completed("ok")}}

	res, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, opts(5, &fakeClock{}))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, status.Calls())
}

func TestSubmitAndPoll_EveryCheckFails(t *testing.T) {
	boom := errors.New("dns failure")
	status := &scriptedStatus{steps: []step{transient(boom)}}

	_, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, opts(4, &fakeClock{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, poller.ErrStatusCheckFailed)
	assert.NotErrorIs(t, err, poller.ErrJobTimedOut)
	assert.ErrorIs(t, err, boom)

	var se *poller.StatusCheckError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Attempts)
	assert.Equal(t, 4, status.Calls())
}

func TestSubmitAndPoll_FailuresAfterSuccessfulCheckTimeOut(t *testing.T) {
	boom := errors.New("502 bad gateway")
	status := &scriptedStatus{steps: []step{pending(), transient(boom), transient(boom)}}

	_, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, opts(3, &fakeClock{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, poller.ErrJobTimedOut)

	var te *poller.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, te.LastErr, boom)
}

func TestSubmitAndPoll_ProgressNotCalledForFailedChecks(t *testing.T) {
	status := &scriptedStatus{steps: []step{transient(errors.New("x")), pending(), completed("ok")}}

	var attempts []int
	calls := 0
	o := opts(5, &fakeClock{})
	o.OnProgress = func(poller.Snapshot[string]) {
		calls++
		attempts = append(attempts, status.Calls())
	}

	_, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, o)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{2}, attempts)
}

// ─── cancellation ────────────────────────────────────────────────────────────

func TestSubmitAndPoll_CancelDuringWait(t *testing.T) {
	clock := &blockingClock{waiting: make(chan struct{})}
	status := &scriptedStatus{steps: []step{{snap: poller.Snapshot[string]{
		Status: poller.Status{State: poller.RemotePending, Progress: 40, Message: "rendering"},
	}}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := poller.SubmitAndPoll(ctx, submitOK("job-c"), status.fn, opts(10, clock))
		errCh <- err
	}()

	<-clock.waiting
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.ErrorIs(t, err, poller.ErrJobCancelled)

		var ce *poller.CancelledError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "job-c", ce.JobID)
		assert.Equal(t, 1, ce.Attempt)
		require.NotNil(t, ce.Last)
		assert.Equal(t, 40.0, ce.Last.Progress)
		assert.Equal(t, "rendering", ce.Last.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not stop after cancellation")
	}
	assert.Equal(t, 1, status.Calls())
}

func TestSubmitAndPoll_CancelDuringCheckLetsCallFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var sawCancelled bool
	statusFn := func(callCtx context.Context, _ string) (poller.Snapshot[string], error) {
		calls++
		close(entered)
		<-release
		sawCancelled = callCtx.Err() != nil
		return snap(poller.RemotePending, "", ""), nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := poller.SubmitAndPoll(ctx, submitOK("job-c"), statusFn, opts(10, &fakeClock{}))
		errCh <- err
	}()

	<-entered
	cancel()
	close(release)

	err := <-errCh
	assert.ErrorIs(t, err, poller.ErrJobCancelled)
	assert.Equal(t, 1, calls)
	assert.False(t, sawCancelled, "in-flight check must not observe cancellation")
}

func TestSubmitAndPoll_CancelledBeforeSubmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	submitted := false
	_, err := poller.SubmitAndPoll(ctx, func(context.Context) (string, error) {
		submitted = true
		return "j", nil
	}, (&scriptedStatus{steps: []step{completed("x")}}).fn, opts(3, &fakeClock{}))

	assert.ErrorIs(t, err, poller.ErrJobCancelled)
	assert.False(t, submitted)
}

// ─── concurrency ─────────────────────────────────────────────────────────────

func TestSubmitAndPoll_ConcurrentJobsAreIndependent(t *testing.T) {
	clockA, clockB := &fakeClock{}, &fakeClock{}
	statusA := &scriptedStatus{steps: []step{pending(), pending(), pending(), completed("a")}}
	statusB := &scriptedStatus{steps: []step{pending(), completed("b")}}

	var wg sync.WaitGroup
	var resA, resB *poller.Result[string]
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		resA, errA = poller.SubmitAndPoll(context.Background(), submitOK("job-a"), statusA.fn, opts(10, clockA))
	}()
	go func() {
		defer wg.Done()
		resB, errB = poller.SubmitAndPoll(context.Background(), submitOK("job-b"), statusB.fn, opts(10, clockB))
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, 4, resA.Attempts)
	assert.Equal(t, 2, resB.Attempts)
	assert.Equal(t, 3*time.Second, clockA.Elapsed())
	assert.Equal(t, 1*time.Second, clockB.Elapsed())
	for _, id := range statusA.ids {
		assert.Equal(t, "job-a", id)
	}
	for _, id := range statusB.ids {
		assert.Equal(t, "job-b", id)
	}
}

// ─── misc ────────────────────────────────────────────────────────────────────

func TestPoll_ExistingJob(t *testing.T) {
	status := &scriptedStatus{steps: []step{pending(), completed("url")}}

	res, err := poller.Poll(context.Background(), "existing", status.fn, opts(3, &fakeClock{}))
	require.NoError(t, err)
	assert.Equal(t, "existing", res.JobID)
	assert.Equal(t, "url", res.Result)
}

func TestSubmitAndPoll_ProgressPanicPropagates(t *testing.T) {
	status := &scriptedStatus{steps: []step{pending()}}
	o := opts(3, &fakeClock{})
	o.OnProgress = func(poller.Snapshot[string]) { panic("observer bug") }

	assert.PanicsWithValue(t, "observer bug", func() {
		_, _ = poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn, o)
	})
}

func TestOptions_Defaults(t *testing.T) {
	clock := &fakeClock{}
	status := &scriptedStatus{steps: []step{pending()}}

	_, err := poller.SubmitAndPoll(context.Background(), submitOK("j"), status.fn,
		poller.Options[string]{Clock: clock, Logger: quietLogger()})

	var te *poller.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, poller.DefaultMaxAttempts, te.Attempts)
	assert.Equal(t, time.Duration(poller.DefaultMaxAttempts-1)*poller.DefaultInterval, clock.Elapsed())
}

func TestJob_TerminalCarriesResultOrError(t *testing.T) {
	boom := errors.New("connection refused")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		steps []step
		state poller.State
	}{
		{"completed", context.Background(), []step{pending(), completed("https://x/v.mp4")}, poller.StateCompleted},
		{"failed", context.Background(), []step{failed("bad avatar")}, poller.StateFailed},
		{"timed out", context.Background(), []step{pending()}, poller.StateTimedOut},
		{"unobservable", context.Background(), []step{transient(boom)}, poller.StateStatusCheckExhausted},
		{"cancelled", cancelled, []step{pending()}, poller.StateCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &scriptedStatus{steps: tt.steps}
			job, err := poller.RunJob(tt.ctx, "job-t", status.fn, opts(3, &fakeClock{}))

			assert.Equal(t, tt.state, job.State)
			assert.True(t, job.State.Terminal())
			if tt.state == poller.StateCompleted {
				require.NoError(t, err)
				assert.Equal(t, "https://x/v.mp4", job.Result)
				assert.Empty(t, job.Error)
				return
			}
			require.Error(t, err)
			assert.Empty(t, job.Result)
			assert.Equal(t, err.Error(), job.Error)
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, poller.StateSubmitted.Terminal())
	assert.False(t, poller.StatePolling.Terminal())
	for _, s := range []poller.State{
		poller.StateCompleted, poller.StateFailed, poller.StateTimedOut,
		poller.StateSubmissionFailed, poller.StateStatusCheckExhausted, poller.StateCancelled,
	} {
		assert.True(t, s.Terminal(), s)
	}
}

package poller

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by SubmitAndPoll and Poll matches
// exactly one of these with errors.Is.
var (
	ErrSubmissionFailed  = errors.New("poller: job submission failed")
	ErrJobFailed         = errors.New("poller: job failed")
	ErrJobTimedOut       = errors.New("poller: job timed out")
	ErrStatusCheckFailed = errors.New("poller: job status check failed")
	ErrJobCancelled      = errors.New("poller: job polling cancelled")
)

// SubmissionError is returned when the submit function fails. The status
// function is never called in that case.
type SubmissionError struct {
	Kind Kind
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("poller: submit %s job: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionFailed }
func (e *SubmissionError) Unwrap() error        { return e.Err }

// FailedError is returned when the remote system reports the job as failed.
type FailedError struct {
	JobID   string
	Kind    Kind
	Attempt int
	Message string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("poller: %s job %s failed", e.Kind, e.JobID)
	}
	return fmt.Sprintf("poller: %s job %s failed: %s", e.Kind, e.JobID, e.Message)
}

func (e *FailedError) Is(target error) bool { return target == ErrJobFailed }

// TimeoutError is returned when every allowed check ran and the job was
// still pending. LastErr is set when the final checks failed transiently.
type TimeoutError struct {
	JobID    string
	Kind     Kind
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("poller: %s job %s still pending after %d attempts", e.Kind, e.JobID, e.Attempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrJobTimedOut }

// StatusCheckError is returned when the status function failed on every
// attempt, meaning the job state could never be observed.
type StatusCheckError struct {
	JobID    string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *StatusCheckError) Error() string {
	return fmt.Sprintf("poller: %s job %s status unobservable after %d attempts: %v", e.Kind, e.JobID, e.Attempts, e.Err)
}

func (e *StatusCheckError) Is(target error) bool { return target == ErrStatusCheckFailed }
func (e *StatusCheckError) Unwrap() error        { return e.Err }

// CancelledError is returned when the caller's context ends before a
// terminal state. The remote job is not cancelled. Last holds the most
// recent pending status, or nil if none was observed.
type CancelledError struct {
	JobID   string
	Kind    Kind
	Attempt int
	Last    *Status
}

func (e *CancelledError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("poller: %s job cancelled before submission", e.Kind)
	}
	return fmt.Sprintf("poller: %s job %s polling cancelled after %d attempts", e.Kind, e.JobID, e.Attempt)
}

func (e *CancelledError) Is(target error) bool { return target == ErrJobCancelled }

// Describe returns a short, user-facing reason for a poller error, suitable
// for persisting next to a failed job record.
func Describe(err error) string {
	var (
		failed    *FailedError
		submitErr *SubmissionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &failed):
		if failed.Message != "" {
			return failed.Message
		}
		return "remote job failed"
	case errors.Is(err, ErrJobTimedOut):
		return "timed out waiting for remote job"
	case errors.Is(err, ErrStatusCheckFailed):
		return "lost contact with remote service"
	case errors.As(err, &submitErr):
		return fmt.Sprintf("could not submit job: %v", submitErr.Err)
	case errors.Is(err, ErrJobCancelled):
		return "cancelled"
	default:
		return err.Error()
	}
}

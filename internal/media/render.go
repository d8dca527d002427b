// Package media runs render jobs against the remote video platforms in the
// background and records their outcome.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/lingocast/internal/cache"
	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/poller"
	"github.com/kiranshivaraju/lingocast/internal/store"
	"github.com/kiranshivaraju/lingocast/internal/video"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

const instrumentationName = "github.com/kiranshivaraju/lingocast/internal/media"

const (
	statusTTL      = 30 * time.Minute
	maxBatch       = 10
	msgInterrupted = "interrupted before submission"
)

var ErrBatchTooLarge = fmt.Errorf("batch may contain at most %d renders", maxBatch)

// RenderService starts render jobs and tracks them to completion.
type RenderService struct {
	store    store.Store
	cache    cache.Cache
	registry *video.Registry
	poll     config.PollConfig
	logger   *slog.Logger
	clock    poller.Clock

	tracer   trace.Tracer
	polls    metric.Int64Counter
	duration metric.Float64Histogram

	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
	closing  bool
	wg       sync.WaitGroup
}

// Option configures a RenderService.
type Option func(*RenderService)

func WithLogger(l *slog.Logger) Option {
	return func(s *RenderService) { s.logger = l }
}

// WithClock replaces the poller's wall clock, mainly for tests.
func WithClock(c poller.Clock) Option {
	return func(s *RenderService) { s.clock = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *RenderService) { s.tracer = tp.Tracer(instrumentationName) }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *RenderService) { s.initMetrics(mp.Meter(instrumentationName)) }
}

// NewRenderService creates a RenderService. Without options it reports to the
// global OTel providers, which are no-ops unless main installs an SDK.
func NewRenderService(st store.Store, c cache.Cache, registry *video.Registry, poll config.PollConfig, opts ...Option) *RenderService {
	s := &RenderService{
		store:    st,
		cache:    c,
		registry: registry,
		poll:     poll,
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
		inflight: make(map[uuid.UUID]context.CancelFunc),
	}
	s.initMetrics(otel.Meter(instrumentationName))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RenderService) initMetrics(meter metric.Meter) {
	// Instrument errors fall back to no-op instruments.
	s.polls, _ = meter.Int64Counter("lingocast.render.polls",
		metric.WithDescription("Render jobs polled to a terminal outcome"),
		metric.WithUnit("{job}"))
	s.duration, _ = meter.Float64Histogram("lingocast.render.duration",
		metric.WithDescription("Time from submission to terminal outcome"),
		metric.WithUnit("s"))
}

// Render validates req, records a pending render job and starts it in the
// background. It returns as soon as the job is persisted.
func (s *RenderService) Render(ctx context.Context, profileID uuid.UUID, req video.RenderRequest) (*models.RenderJob, error) {
	backend, err := s.backendFor(req)
	if err != nil {
		return nil, err
	}

	job, err := s.createJob(ctx, profileID, backend, req)
	if err != nil {
		return nil, err
	}

	runCtx := s.track(job.ID)
	go s.runRender(runCtx, job, backend, req)

	return job, nil
}

// BatchItem is the outcome of one request in a RenderBatch call.
type BatchItem struct {
	Job   *models.RenderJob `json:"job,omitempty"`
	Video *models.Video     `json:"video,omitempty"`
	Error string            `json:"error,omitempty"`
}

// RenderBatch renders every request concurrently and waits for all of them.
// Each request is polled independently; a failed item is reported in its
// BatchItem and does not cancel the others. Cancelling ctx cancels every
// poll still running.
func (s *RenderService) RenderBatch(ctx context.Context, profileID uuid.UUID, reqs []video.RenderRequest) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", video.ErrInvalidRequest)
	}
	if len(reqs) > maxBatch {
		return nil, ErrBatchTooLarge
	}

	backends := make([]video.Backend, len(reqs))
	for i, req := range reqs {
		b, err := s.backendFor(req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		backends[i] = b
	}

	items := make([]BatchItem, len(reqs))
	var g errgroup.Group
	for i := range reqs {
		g.Go(func() error {
			job, err := s.createJob(ctx, profileID, backends[i], reqs[i])
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			// the poll outlives ctx's cancellation but stays in the request's trace
			runCtx := trace.ContextWithSpanContext(s.track(job.ID), trace.SpanContextFromContext(ctx))
			stop := context.AfterFunc(ctx, func() { s.cancel(job.ID) })
			defer stop()
			v, err := s.runRender(runCtx, job, backends[i], reqs[i])
			items[i].Job = job
			items[i].Video = v
			if err != nil {
				items[i].Error = poller.Describe(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range items {
		if items[i].Job == nil {
			continue
		}
		if j, err := s.store.GetRenderJob(context.WithoutCancel(ctx), items[i].Job.ID, profileID); err == nil {
			items[i].Job = j
		}
	}
	return items, nil
}

// JobStatus returns a render job, overlaying the cached status and progress
// when the poll is still in flight.
func (s *RenderService) JobStatus(ctx context.Context, profileID, jobID uuid.UUID) (*models.RenderJob, error) {
	job, err := s.store.GetRenderJob(ctx, jobID, profileID)
	if err != nil {
		return nil, err
	}

	cached, ok, err := s.cache.GetRenderStatus(ctx, jobID)
	if err != nil || !ok {
		return job, nil
	}
	status, progress := parseCachedStatus(cached)
	if status == models.RenderStatusRunning && job.Status == models.RenderStatusRunning {
		job.Progress = progress
	}
	return job, nil
}

// Resume picks up render jobs left unfinished by a previous process. Jobs that
// reached the remote platform are polled again; jobs that never did are
// marked failed since their submission outcome is unknown.
func (s *RenderService) Resume(ctx context.Context) (int, error) {
	jobs, err := s.store.ListUnfinishedRenderJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing unfinished render jobs: %w", err)
	}

	resumed := 0
	for _, job := range jobs {
		backend, err := s.registry.Get(poller.Kind(job.Kind))
		if err != nil || job.RemoteJobID == nil {
			reason := msgInterrupted
			if err != nil {
				reason = err.Error()
			}
			s.fail(ctx, job.ID, reason)
			continue
		}

		var req video.RenderRequest
		if len(job.Request) > 0 {
			if err := json.Unmarshal(job.Request, &req); err != nil {
				s.logger.Warn("render request not decodable, resuming without it", "job_id", job.ID, "error", err)
			}
		}
		req.Kind = poller.Kind(job.Kind)

		runCtx := s.track(job.ID)
		go s.resumeRender(runCtx, job, backend, req)
		resumed++
	}

	s.logger.Info("render jobs resumed", "resumed", resumed, "unfinished", len(jobs))
	return resumed, nil
}

// Shutdown cancels every in-flight poll and waits for them to record their
// outcome or for ctx to expire. Jobs already accepted by the remote platform
// stay running with their remote id so the next process can Resume them.
func (s *RenderService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, cancel := range s.inflight {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RenderService) backendFor(req video.RenderRequest) (video.Backend, error) {
	backend, err := s.registry.Get(req.Kind)
	if err != nil {
		return nil, err
	}
	if err := backend.Validate(req); err != nil {
		return nil, err
	}
	return backend, nil
}

func (s *RenderService) createJob(ctx context.Context, profileID uuid.UUID, backend video.Backend, req video.RenderRequest) (*models.RenderJob, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding render request: %w", err)
	}

	now := time.Now().UTC()
	job := &models.RenderJob{
		ID:        uuid.New(),
		ProfileID: profileID,
		Kind:      string(req.Kind),
		Provider:  backend.Provider(),
		Status:    models.RenderStatusPending,
		Request:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateRenderJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating render job: %w", err)
	}

	_ = s.cache.SetRenderStatus(ctx, job.ID, models.RenderStatusPending, statusTTL)
	return job, nil
}

// track registers a cancellable context for a job so Shutdown can stop it.
func (s *RenderService) track(jobID uuid.UUID) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.inflight[jobID] = cancel
	s.mu.Unlock()
	s.wg.Add(1)
	return ctx
}

func (s *RenderService) cancel(jobID uuid.UUID) {
	s.mu.Lock()
	if cancel, ok := s.inflight[jobID]; ok {
		cancel()
	}
	s.mu.Unlock()
}

func (s *RenderService) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *RenderService) untrack(jobID uuid.UUID) {
	s.mu.Lock()
	if cancel, ok := s.inflight[jobID]; ok {
		cancel()
		delete(s.inflight, jobID)
	}
	s.mu.Unlock()
	s.wg.Done()
}

// runRender submits and polls one job. It recovers from panics and always
// leaves the job completed or failed.
func (s *RenderService) runRender(ctx context.Context, job *models.RenderJob, backend video.Backend, req video.RenderRequest) (v *models.Video, err error) {
	defer s.untrack(job.ID)
	defer s.recoverJob(job.ID, &err)

	bg := context.WithoutCancel(ctx)
	s.markRunning(bg, job.ID, "")
	_ = s.cache.SetRenderStatus(bg, job.ID, models.RenderStatusRunning, statusTTL)

	submit, status := backend.Jobs(req)
	recordingSubmit := func(ctx context.Context) (string, error) {
		remoteID, err := submit(ctx)
		if err == nil {
			s.markRunning(bg, job.ID, remoteID)
		}
		return remoteID, err
	}

	res, err := s.instrument(ctx, job, func(opts poller.Options[video.Asset]) (*poller.Result[video.Asset], error) {
		return poller.SubmitAndPoll(ctx, recordingSubmit, status, opts)
	})
	return s.finish(bg, job, req, res, err)
}

// markRunning moves a job to running, recording remoteID when it is set.
// Without a stored remote id the job cannot be resumed, so that write is
// retried once.
func (s *RenderService) markRunning(ctx context.Context, jobID uuid.UUID, remoteID string) {
	var opts []store.JobUpdateOption
	if remoteID != "" {
		opts = append(opts, store.WithRemoteJobID(remoteID))
	}
	err := s.store.UpdateRenderJobStatus(ctx, jobID, models.RenderStatusRunning, opts...)
	if err == nil {
		return
	}
	s.logger.Error("failed to mark render job running", "job_id", jobID, "remote_id", remoteID, "error", err)
	if remoteID == "" {
		return
	}
	if err := s.store.UpdateRenderJobStatus(ctx, jobID, models.RenderStatusRunning, opts...); err != nil {
		s.logger.Error("remote job id not recorded, job cannot be resumed", "job_id", jobID, "remote_id", remoteID, "error", err)
	}
}

func (s *RenderService) resumeRender(ctx context.Context, job *models.RenderJob, backend video.Backend, req video.RenderRequest) {
	var err error
	defer s.untrack(job.ID)
	defer s.recoverJob(job.ID, &err)

	_, status := backend.Jobs(req)
	res, err := s.instrument(ctx, job, func(opts poller.Options[video.Asset]) (*poller.Result[video.Asset], error) {
		return poller.Poll(ctx, *job.RemoteJobID, status, opts)
	})
	_, err = s.finish(context.WithoutCancel(ctx), job, req, res, err)
}

func (s *RenderService) recoverJob(jobID uuid.UUID, errp *error) {
	if r := recover(); r != nil {
		s.logger.Error("panic in render job", "error", r, "job_id", jobID)
		s.fail(context.Background(), jobID, fmt.Sprintf("panic: %v", r))
		*errp = fmt.Errorf("render job panicked: %v", r)
	}
}

// instrument wraps one poll in a span and records its outcome.
func (s *RenderService) instrument(
	ctx context.Context,
	job *models.RenderJob,
	poll func(poller.Options[video.Asset]) (*poller.Result[video.Asset], error),
) (*poller.Result[video.Asset], error) {
	ctx, span := s.tracer.Start(ctx, "lingocast.render.poll",
		trace.WithAttributes(
			attribute.String("lingocast.render.job_id", job.ID.String()),
			attribute.String("lingocast.render.kind", job.Kind),
			attribute.String("lingocast.render.provider", job.Provider),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	start := time.Now()
	res, err := poll(s.pollOptions(ctx, job))
	elapsed := time.Since(start).Seconds()

	outcome := outcomeOf(err)
	attrs := metric.WithAttributes(
		attribute.String("kind", job.Kind),
		attribute.String("outcome", outcome),
	)
	s.polls.Add(ctx, 1, attrs)
	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, poller.Describe(err))
	} else {
		span.SetAttributes(attribute.Int("lingocast.render.attempts", res.Attempts))
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

func (s *RenderService) pollOptions(ctx context.Context, job *models.RenderJob) poller.Options[video.Asset] {
	interval := s.poll.Interval
	if poller.Kind(job.Kind) == poller.KindAvatarTraining {
		interval = s.poll.TrainingInterval
	}

	bg := context.WithoutCancel(ctx)
	return poller.Options[video.Asset]{
		Kind:        poller.Kind(job.Kind),
		MaxAttempts: s.poll.MaxAttempts,
		Interval:    interval,
		Logger:      s.logger.With("render_job_id", job.ID),
		Clock:       s.clock,
		OnProgress: func(snap poller.Snapshot[video.Asset]) {
			_ = s.cache.SetRenderStatus(bg, job.ID, formatCachedStatus(snap.Progress), statusTTL)
		},
	}
}

func (s *RenderService) finish(ctx context.Context, job *models.RenderJob, req video.RenderRequest, res *poller.Result[video.Asset], err error) (*models.Video, error) {
	if err != nil {
		var cancelled *poller.CancelledError
		if errors.As(err, &cancelled) && cancelled.JobID != "" && s.shuttingDown() {
			s.leaveForResume(ctx, job, cancelled)
			return nil, err
		}
		msg := poller.Describe(err)
		s.fail(ctx, job.ID, msg, store.WithAttempts(attemptsOf(err)))
		s.logger.Warn("render job failed", "job_id", job.ID, "kind", job.Kind, "reason", msg)
		return nil, err
	}

	asset := res.Result
	location := asset.Location()

	// The video is stored first so that a job observed as completed always
	// has its video listed.
	v := &models.Video{
		ID:          uuid.New(),
		ProfileID:   job.ProfileID,
		RenderJobID: job.ID,
		Kind:        job.Kind,
		Provider:    job.Provider,
		Title:       req.Title,
		Script:      req.Script,
		Language:    req.Language,
		URL:         location,
		CreatedAt:   time.Now().UTC(),
	}
	if asset.ThumbnailURL != "" {
		thumb := asset.ThumbnailURL
		v.ThumbnailURL = &thumb
	}
	if err := s.store.CreateVideo(ctx, v); err != nil {
		// The asset stays reachable through the job's result_url.
		s.logger.Error("failed to store video", "job_id", job.ID, "error", err)
		v = nil
	}

	if err := s.store.UpdateRenderJobStatus(ctx, job.ID, models.RenderStatusCompleted,
		store.WithRemoteJobID(res.JobID),
		store.WithResultURL(location),
		store.WithAttempts(res.Attempts),
	); err != nil {
		s.logger.Error("failed to mark render job completed", "job_id", job.ID, "error", err)
		return v, fmt.Errorf("completing render job: %w", err)
	}
	_ = s.cache.SetRenderStatus(ctx, job.ID, models.RenderStatusCompleted, statusTTL)

	s.logger.Info("render job completed", "job_id", job.ID, "kind", job.Kind, "attempts", res.Attempts)
	return v, nil
}

// leaveForResume keeps a job interrupted by Shutdown in the running state
// with its remote id, where Resume finds it.
func (s *RenderService) leaveForResume(ctx context.Context, job *models.RenderJob, cancelled *poller.CancelledError) {
	if err := s.store.UpdateRenderJobStatus(ctx, job.ID, models.RenderStatusRunning,
		store.WithRemoteJobID(cancelled.JobID),
		store.WithAttempts(cancelled.Attempt),
	); err != nil {
		s.logger.Error("failed to keep render job for resume", "job_id", job.ID, "remote_id", cancelled.JobID, "error", err)
	}
	_ = s.cache.SetRenderStatus(ctx, job.ID, models.RenderStatusRunning, statusTTL)
	s.logger.Info("render job left for resume", "job_id", job.ID, "remote_id", cancelled.JobID, "attempts", cancelled.Attempt)
}

func (s *RenderService) fail(ctx context.Context, jobID uuid.UUID, msg string, opts ...store.JobUpdateOption) {
	opts = append(opts, store.WithErrorMessage(msg))
	if err := s.store.UpdateRenderJobStatus(ctx, jobID, models.RenderStatusFailed, opts...); err != nil {
		s.logger.Error("failed to mark render job failed", "job_id", jobID, "error", err)
	}
	_ = s.cache.SetRenderStatus(ctx, jobID, models.RenderStatusFailed, statusTTL)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return string(poller.StateCompleted)
	case errors.Is(err, poller.ErrJobFailed):
		return string(poller.StateFailed)
	case errors.Is(err, poller.ErrJobTimedOut):
		return string(poller.StateTimedOut)
	case errors.Is(err, poller.ErrSubmissionFailed):
		return string(poller.StateSubmissionFailed)
	case errors.Is(err, poller.ErrStatusCheckFailed):
		return string(poller.StateStatusCheckExhausted)
	case errors.Is(err, poller.ErrJobCancelled):
		return string(poller.StateCancelled)
	default:
		return "error"
	}
}

func attemptsOf(err error) int {
	var (
		failed    *poller.FailedError
		timeout   *poller.TimeoutError
		exhausted *poller.StatusCheckError
		cancelled *poller.CancelledError
	)
	switch {
	case errors.As(err, &failed):
		return failed.Attempt
	case errors.As(err, &timeout):
		return timeout.Attempts
	case errors.As(err, &exhausted):
		return exhausted.Attempts
	case errors.As(err, &cancelled):
		return cancelled.Attempt
	default:
		return 0
	}
}

// formatCachedStatus encodes an in-flight status as "running:<progress>".
func formatCachedStatus(progress float64) string {
	return models.RenderStatusRunning + ":" + strconv.FormatFloat(progress, 'f', -1, 64)
}

func parseCachedStatus(v string) (string, float64) {
	status, rest, found := strings.Cut(v, ":")
	if !found {
		return status, 0
	}
	p, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return status, 0
	}
	return status, p
}

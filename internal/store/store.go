package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid render job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, profileID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, profileID uuid.UUID) error

	CreateRenderJob(ctx context.Context, job *models.RenderJob) error
	GetRenderJob(ctx context.Context, id uuid.UUID, profileID uuid.UUID) (*models.RenderJob, error)
	UpdateRenderJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	ListUnfinishedRenderJobs(ctx context.Context) ([]*models.RenderJob, error)

	CreateVideo(ctx context.Context, v *models.Video) error
	ListVideos(ctx context.Context, filter VideoFilter) ([]*models.Video, int, error)
	DeleteVideo(ctx context.Context, id uuid.UUID, profileID uuid.UUID) error

	CreatePracticeAttempt(ctx context.Context, a *models.PracticeAttempt) error
	ListPracticeAttempts(ctx context.Context, profileID uuid.UUID, limit int) ([]*models.PracticeAttempt, error)
}

type VideoFilter struct {
	ProfileID uuid.UUID
	Kind      string
	Language  string
	Page      int
	Limit     int
}

type jobUpdateParams struct {
	ErrorMessage *string
	RemoteJobID  *string
	ResultURL    *string
	Attempts     *int
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithRemoteJobID(id string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.RemoteJobID = &id
	}
}

func WithResultURL(url string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ResultURL = &url
	}
}

func WithAttempts(n int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Attempts = &n
	}
}

// ApplyJobUpdateOptions resolves options into their values. It lets fakes
// in other packages record what an update carried.
func ApplyJobUpdateOptions(opts ...JobUpdateOption) (errorMessage, remoteJobID, resultURL *string, attempts *int) {
	p := &jobUpdateParams{}
	for _, opt := range opts {
		opt(p)
	}
	return p.ErrorMessage, p.RemoteJobID, p.ResultURL, p.Attempts
}

var validTransitions = map[string][]string{
	models.RenderStatusPending: {models.RenderStatusRunning, models.RenderStatusFailed},
	models.RenderStatusRunning: {models.RenderStatusRunning, models.RenderStatusCompleted, models.RenderStatusFailed},
}

// ValidTransition reports whether a render job may move from one status to another.
// running -> running is allowed so that the remote job id can be recorded
// after submission.
func ValidTransition(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

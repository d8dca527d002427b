package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RenderStatusPending   = "pending"
	RenderStatusRunning   = "running"
	RenderStatusCompleted = "completed"
	RenderStatusFailed    = "failed"
)

// RenderJob is the local record of one remote render. The API returns it from
// POST /api/v1/renders; the client polls GET /api/v1/renders/{job_id} until
// status is completed or failed.
type RenderJob struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	ProfileID    uuid.UUID `db:"profile_id"    json:"profile_id"`
	Kind         string    `db:"kind"          json:"kind"`
	Provider     string    `db:"provider"      json:"provider"`
	RemoteJobID  *string   `db:"remote_job_id" json:"remote_job_id,omitempty"`
	Status       string    `db:"status"        json:"status"`
	Progress     float64   `db:"-"             json:"progress,omitempty"`
	Attempts     int       `db:"attempts"      json:"attempts"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	ResultURL    *string   `db:"result_url"    json:"result_url,omitempty"`
	// Request is the original render request, kept so an interrupted job
	// can be resumed after a restart.
	Request     json.RawMessage `db:"request"      json:"-"`
	StartedAt   *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"    json:"updated_at"`
}

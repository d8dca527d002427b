package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RecordingIdle   = "idle"
	RecordingActive = "recording"
)

// Session is an explicit handle for one learner's app session. It replaces
// process-wide "current language" and "current recording" state so that any
// number of sessions can coexist.
type Session struct {
	ID            uuid.UUID  `json:"id"`
	ProfileID     uuid.UUID  `json:"profile_id"`
	Language      string     `json:"language"`
	Recording     string     `json:"recording"`
	CurrentLesson *string    `json:"current_lesson,omitempty"`
	RecordingAt   *time.Time `json:"recording_started_at,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

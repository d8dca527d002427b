package models

import (
	"time"

	"github.com/google/uuid"
)

// Video is a finished media artifact (rendered video, generated photo or
// trained avatar) produced by a completed RenderJob.
type Video struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	ProfileID    uuid.UUID `db:"profile_id"    json:"profile_id"`
	RenderJobID  uuid.UUID `db:"render_job_id" json:"render_job_id"`
	Kind         string    `db:"kind"          json:"kind"`
	Provider     string    `db:"provider"      json:"provider"`
	Title        string    `db:"title"         json:"title"`
	Script       string    `db:"script"        json:"script,omitempty"`
	Language     string    `db:"language"      json:"language"`
	URL          string    `db:"url"           json:"url"`
	ThumbnailURL *string   `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

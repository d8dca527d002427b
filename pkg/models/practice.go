package models

import (
	"time"

	"github.com/google/uuid"
)

// PracticeAttempt is one spoken attempt at a phrase, with the transcript and
// the tutor's assessment.
type PracticeAttempt struct {
	ID         uuid.UUID `db:"id"         json:"id"`
	ProfileID  uuid.UUID `db:"profile_id" json:"profile_id"`
	Phrase     string    `db:"phrase"     json:"phrase"`
	Language   string    `db:"language"   json:"language"`
	Transcript string    `db:"transcript" json:"transcript"`
	Score      float64   `db:"score"      json:"score"`
	Feedback   string    `db:"feedback"   json:"feedback"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

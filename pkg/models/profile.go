package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is a learner. Every other persisted entity belongs to a profile.
type Profile struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	DisplayName    string    `db:"display_name"    json:"display_name"`
	NativeLanguage string    `db:"native_language" json:"native_language"`
	TargetLanguage string    `db:"target_language" json:"target_language"`
	Level          string    `db:"level"           json:"level"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// Proficiency levels accepted for Profile.Level.
var Levels = []string{"beginner", "intermediate", "advanced"}

// ValidLevel reports whether level is one of Levels.
func ValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RenderStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("render:%s", jobID)
}

func SessionKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// LessonKey caches generated lessons per profile and request hash.
func LessonKey(profileID uuid.UUID, requestHash string) string {
	return fmt.Sprintf("lesson:%s:%s", profileID, requestHash)
}

package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/ai"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/internal/cache"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

const lessonTTL = 24 * time.Hour

// LessonGenerator writes lessons with the configured AI provider.
type LessonGenerator interface {
	GenerateLesson(ctx context.Context, p ai.LessonParams) (*ai.Lesson, error)
}

// LessonCache stores generated lessons.
type LessonCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// LessonSessions records the lesson a session is working through.
type LessonSessions interface {
	SetLesson(ctx context.Context, profileID, id uuid.UUID, title string) (*models.Session, error)
}

// LessonDeps groups what the lesson endpoint needs.
type LessonDeps struct {
	Generator LessonGenerator
	Profiles  ProfileReader
	Cache     LessonCache
	Sessions  LessonSessions
}

// NewLessonHandler returns an http.HandlerFunc for POST /api/v1/lessons.
// Languages and level default to the learner's profile. Identical requests
// from the same profile are served from cache for a day. With session_id
// the lesson title becomes that session's current lesson.
func NewLessonHandler(d LessonDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		var req struct {
			Topic          string `json:"topic"`
			TargetLanguage string `json:"target_language"`
			NativeLanguage string `json:"native_language"`
			Level          string `json:"level"`
			Phrases        int    `json:"phrases"`
			SessionID      string `json:"session_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Topic) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "topic is required", nil)
			return
		}
		var sessionID uuid.UUID
		if req.SessionID != "" {
			id, err := uuid.Parse(req.SessionID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_SESSION_ID", "Invalid session_id format", nil)
				return
			}
			sessionID = id
		}

		profile, err := d.Profiles.GetProfile(r.Context(), profileID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		params := ai.LessonParams{
			TargetLanguage: orDefault(req.TargetLanguage, profile.TargetLanguage),
			NativeLanguage: orDefault(req.NativeLanguage, profile.NativeLanguage),
			Level:          orDefault(req.Level, profile.Level),
			Topic:          strings.TrimSpace(req.Topic),
			Phrases:        req.Phrases,
		}

		key := cache.LessonKey(profileID, lessonHash(params))
		lesson, hit := cachedLesson(r.Context(), d.Cache, key)
		if !hit {
			lesson, err = d.Generator.GenerateLesson(r.Context(), params)
			if err != nil {
				writeError(w, r, err)
				return
			}
			storeLesson(r.Context(), d.Cache, key, lesson)
		}

		if sessionID != uuid.Nil {
			if _, err := d.Sessions.SetLesson(r.Context(), profileID, sessionID, lesson.Title); err != nil {
				writeError(w, r, err)
				return
			}
		}

		if hit {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		response.JSON(w, lesson)
	}
}

func lessonHash(p ai.LessonParams) string {
	b, _ := json.Marshal(struct {
		T, N, L, Topic string
		P              int
	}{p.TargetLanguage, p.NativeLanguage, p.Level, strings.ToLower(p.Topic), p.Phrases})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// cachedLesson treats any cache failure as a miss.
func cachedLesson(ctx context.Context, c LessonCache, key string) (*ai.Lesson, bool) {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		slog.Warn("lesson cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var l ai.Lesson
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, false
	}
	return &l, true
}

func storeLesson(ctx context.Context, c LessonCache, key string, l *ai.Lesson) {
	data, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := c.Set(ctx, key, data, lessonTTL); err != nil {
		slog.Warn("lesson cache write failed", "key", key, "error", err)
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

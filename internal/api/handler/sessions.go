package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// Sessions is the session lifecycle the endpoints drive.
type Sessions interface {
	Start(ctx context.Context, profileID uuid.UUID, language string) (*models.Session, error)
	Get(ctx context.Context, profileID, id uuid.UUID) (*models.Session, error)
	SetLanguage(ctx context.Context, profileID, id uuid.UUID, language string) (*models.Session, error)
	SetLesson(ctx context.Context, profileID, id uuid.UUID, title string) (*models.Session, error)
	StartRecording(ctx context.Context, profileID, id uuid.UUID) (*models.Session, error)
	StopRecording(ctx context.Context, profileID, id uuid.UUID) (*models.Session, time.Duration, error)
	End(ctx context.Context, profileID, id uuid.UUID) error
}

// ProfileReader loads a learner profile.
type ProfileReader interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// NewStartSessionHandler returns an http.HandlerFunc for POST
// /api/v1/sessions. Without a language the profile's target language is used.
func NewStartSessionHandler(sm Sessions, profiles ProfileReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		var req struct {
			Language string `json:"language"`
		}
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		if req.Language == "" {
			p, err := profiles.GetProfile(r.Context(), profileID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			req.Language = p.TargetLanguage
		}

		s, err := sm.Start(r.Context(), profileID, req.Language)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, s)
	}
}

// NewGetSessionHandler returns an http.HandlerFunc for GET
// /api/v1/sessions/{sessionID}.
func NewGetSessionHandler(sm Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, sessionID, ok := sessionParams(w, r)
		if !ok {
			return
		}
		s, err := sm.Get(r.Context(), profileID, sessionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, s)
	}
}

// NewUpdateSessionHandler returns an http.HandlerFunc for PATCH
// /api/v1/sessions/{sessionID}. An empty current_lesson clears it.
func NewUpdateSessionHandler(sm Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, sessionID, ok := sessionParams(w, r)
		if !ok {
			return
		}
		var req struct {
			Language      *string `json:"language"`
			CurrentLesson *string `json:"current_lesson"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Language == nil && req.CurrentLesson == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "language or current_lesson is required", nil)
			return
		}

		var s *models.Session
		var err error
		if req.Language != nil {
			if s, err = sm.SetLanguage(r.Context(), profileID, sessionID, *req.Language); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if req.CurrentLesson != nil {
			if s, err = sm.SetLesson(r.Context(), profileID, sessionID, *req.CurrentLesson); err != nil {
				writeError(w, r, err)
				return
			}
		}
		response.JSON(w, s)
	}
}

// NewStartRecordingHandler returns an http.HandlerFunc for POST
// /api/v1/sessions/{sessionID}/recording/start.
func NewStartRecordingHandler(sm Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, sessionID, ok := sessionParams(w, r)
		if !ok {
			return
		}
		s, err := sm.StartRecording(r.Context(), profileID, sessionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, s)
	}
}

type stoppedRecording struct {
	Session         *models.Session `json:"session"`
	DurationSeconds float64         `json:"duration_seconds"`
}

// NewStopRecordingHandler returns an http.HandlerFunc for POST
// /api/v1/sessions/{sessionID}/recording/stop.
func NewStopRecordingHandler(sm Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, sessionID, ok := sessionParams(w, r)
		if !ok {
			return
		}
		s, elapsed, err := sm.StopRecording(r.Context(), profileID, sessionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, stoppedRecording{Session: s, DurationSeconds: elapsed.Seconds()})
	}
}

// NewEndSessionHandler returns an http.HandlerFunc for DELETE
// /api/v1/sessions/{sessionID}.
func NewEndSessionHandler(sm Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, sessionID, ok := sessionParams(w, r)
		if !ok {
			return
		}
		if err := sm.End(r.Context(), profileID, sessionID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

func sessionParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	profileID, ok := profileFrom(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	sessionID, ok := uuidParam(w, r, "sessionID", "INVALID_SESSION_ID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return profileID, sessionID, true
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/internal/practice"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// maxAudioBytes matches the upload cap of the transcription API.
const maxAudioBytes = 25 << 20

// Practicer grades and lists practice attempts.
type Practicer interface {
	Submit(ctx context.Context, p practice.Params) (*models.PracticeAttempt, error)
	History(ctx context.Context, profileID uuid.UUID, limit int) ([]*models.PracticeAttempt, error)
}

// NewSubmitPracticeHandler returns an http.HandlerFunc for POST
// /api/v1/practice. The body is multipart/form-data with an "audio" file and
// a "phrase" field; "language" defaults to the profile's target language.
func NewSubmitPracticeHandler(ps Practicer, profiles ProfileReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+1<<20)
		if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "AUDIO_TOO_LARGE", "Audio exceeds 25 MB", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected multipart/form-data body", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("audio")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "audio file is required", nil)
			return
		}
		defer file.Close()

		profile, err := profiles.GetProfile(r.Context(), profileID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		attempt, err := ps.Submit(r.Context(), practice.Params{
			ProfileID:      profileID,
			Phrase:         r.FormValue("phrase"),
			Language:       orDefault(r.FormValue("language"), profile.TargetLanguage),
			NativeLanguage: profile.NativeLanguage,
			Audio:          file,
			Filename:       header.Filename,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, attempt)
	}
}

// NewPracticeHistoryHandler returns an http.HandlerFunc for GET
// /api/v1/practice.
func NewPracticeHistoryHandler(ps Practicer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		limit, ok := intQuery(w, r, "limit", 0)
		if !ok {
			return
		}
		attempts, err := ps.History(r.Context(), profileID, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if attempts == nil {
			attempts = []*models.PracticeAttempt{}
		}
		response.JSON(w, attempts)
	}
}

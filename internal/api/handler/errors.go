package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/lingocast/internal/ai"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/internal/media"
	"github.com/kiranshivaraju/lingocast/internal/practice"
	"github.com/kiranshivaraju/lingocast/internal/session"
	"github.com/kiranshivaraju/lingocast/internal/store"
	"github.com/kiranshivaraju/lingocast/internal/video"
)

type apiError struct {
	status int
	code   string
	// message is sent to the client. Empty means err.Error().
	message string
}

// errorTable maps domain errors to responses. Order matters: the first
// match wins.
var errorTable = []struct {
	target error
	apiError
}{
	{store.ErrNotFound, apiError{http.StatusNotFound, "NOT_FOUND", "Resource not found"}},
	{store.ErrDuplicateKey, apiError{http.StatusConflict, "CONFLICT", "Resource already exists"}},
	{video.ErrUnsupportedKind, apiError{http.StatusBadRequest, "UNSUPPORTED_KIND", ""}},
	{video.ErrInvalidRequest, apiError{http.StatusBadRequest, "INVALID_REQUEST", ""}},
	{media.ErrBatchTooLarge, apiError{http.StatusBadRequest, "BATCH_TOO_LARGE", ""}},
	{session.ErrSessionNotFound, apiError{http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found"}},
	{session.ErrAlreadyRecording, apiError{http.StatusConflict, "SESSION_ALREADY_RECORDING", "Session is already recording"}},
	{session.ErrNotRecording, apiError{http.StatusConflict, "SESSION_NOT_RECORDING", "Session is not recording"}},
	{session.ErrInvalidLanguage, apiError{http.StatusBadRequest, "INVALID_REQUEST", "language is required"}},
	{practice.ErrInvalidAttempt, apiError{http.StatusBadRequest, "INVALID_REQUEST", ""}},
	{practice.ErrTranscriptionFailed, apiError{http.StatusBadGateway, "TRANSCRIPTION_FAILED", "Speech could not be transcribed"}},
	{ai.ErrInvalidInput, apiError{http.StatusBadRequest, "INVALID_REQUEST", ""}},
	{ai.ErrProviderUnavailable, apiError{http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE", "The AI provider is not available"}},
	{ai.ErrInferenceTimeout, apiError{http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT", "AI generation took too long and was cancelled"}},
	{ai.ErrInvalidResponse, apiError{http.StatusBadGateway, "AI_INVALID_RESPONSE", "The AI provider returned an unusable reply"}},
}

// writeError maps err onto a JSON error envelope. Unmapped errors are
// logged and reported as INTERNAL_ERROR without leaking their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			msg := e.message
			if msg == "" {
				msg = err.Error()
			}
			response.Error(w, e.status, e.code, msg, nil)
			return
		}
	}
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/internal/store"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// VideoStore lists and deletes finished videos.
type VideoStore interface {
	ListVideos(ctx context.Context, filter store.VideoFilter) ([]*models.Video, int, error)
	DeleteVideo(ctx context.Context, id uuid.UUID, profileID uuid.UUID) error
}

// NewListVideosHandler returns an http.HandlerFunc for GET /api/v1/videos.
// Supports kind, language, page and limit query parameters.
func NewListVideosHandler(vs VideoStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		page, ok := intQuery(w, r, "page", 1)
		if !ok {
			return
		}
		limit, ok := intQuery(w, r, "limit", defaultPageLimit)
		if !ok {
			return
		}
		limit = min(limit, maxPageLimit)

		q := r.URL.Query()
		videos, total, err := vs.ListVideos(r.Context(), store.VideoFilter{
			ProfileID: profileID,
			Kind:      q.Get("kind"),
			Language:  q.Get("language"),
			Page:      page,
			Limit:     limit,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if videos == nil {
			videos = []*models.Video{}
		}
		response.Collection(w, videos, response.NewPaginationMeta(page, limit, total))
	}
}

// NewDeleteVideoHandler returns an http.HandlerFunc for DELETE
// /api/v1/videos/{videoID}.
func NewDeleteVideoHandler(vs VideoStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		videoID, ok := uuidParam(w, r, "videoID", "INVALID_VIDEO_ID")
		if !ok {
			return
		}
		if err := vs.DeleteVideo(r.Context(), videoID, profileID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

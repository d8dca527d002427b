package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/internal/media"
	"github.com/kiranshivaraju/lingocast/internal/video"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// Renderer starts and reports on render jobs.
type Renderer interface {
	Render(ctx context.Context, profileID uuid.UUID, req video.RenderRequest) (*models.RenderJob, error)
	RenderBatch(ctx context.Context, profileID uuid.UUID, reqs []video.RenderRequest) ([]media.BatchItem, error)
	JobStatus(ctx context.Context, profileID, jobID uuid.UUID) (*models.RenderJob, error)
}

// NewRenderHandler returns an http.HandlerFunc for POST /api/v1/renders.
// It answers 202 with the pending job; clients poll GET /renders/{jobID}.
func NewRenderHandler(rs Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		var req video.RenderRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Kind == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "kind is required", nil)
			return
		}

		job, err := rs.Render(r.Context(), profileID, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.AcceptedAt(w, "/api/v1/renders/"+job.ID.String(), job)
	}
}

// NewRenderBatchHandler returns an http.HandlerFunc for POST
// /api/v1/renders/batch. The response is written once every render in the
// batch has finished; items keep request order.
func NewRenderBatchHandler(rs Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		var req struct {
			Requests []video.RenderRequest `json:"requests"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		items, err := rs.RenderBatch(r.Context(), profileID, req.Requests)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, items)
	}
}

// NewRenderStatusHandler returns an http.HandlerFunc for GET
// /api/v1/renders/{jobID}.
func NewRenderStatusHandler(rs Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		jobID, ok := uuidParam(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}

		job, err := rs.JobStatus(r.Context(), profileID, jobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

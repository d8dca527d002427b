package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// ProfileStore is the persistence the profile endpoints need.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

type profileRequest struct {
	DisplayName    *string `json:"display_name"`
	NativeLanguage *string `json:"native_language"`
	TargetLanguage *string `json:"target_language"`
	Level          *string `json:"level"`
}

// apply copies the set fields onto p and reports the first invalid one.
func (req profileRequest) apply(p *models.Profile) string {
	set := func(dst *string, src *string, field string) string {
		if src == nil {
			return ""
		}
		v := strings.TrimSpace(*src)
		if v == "" {
			return field + " must not be empty"
		}
		*dst = v
		return ""
	}
	for _, f := range []struct {
		dst   *string
		src   *string
		field string
	}{
		{&p.DisplayName, req.DisplayName, "display_name"},
		{&p.NativeLanguage, req.NativeLanguage, "native_language"},
		{&p.TargetLanguage, req.TargetLanguage, "target_language"},
		{&p.Level, req.Level, "level"},
	} {
		if msg := set(f.dst, f.src, f.field); msg != "" {
			return msg
		}
	}
	if !models.ValidLevel(p.Level) {
		return "level must be one of " + strings.Join(models.Levels, ", ")
	}
	return ""
}

type createdProfile struct {
	Profile *models.Profile `json:"profile"`
	APIKey  createdKey      `json:"api_key"`
}

// NewCreateProfileHandler returns an http.HandlerFunc for POST
// /api/v1/profiles. It creates the learner and their first API key; the raw
// key appears only in this response.
func NewCreateProfileHandler(ps ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		for _, f := range []struct {
			name string
			v    *string
		}{
			{"display_name", req.DisplayName},
			{"native_language", req.NativeLanguage},
			{"target_language", req.TargetLanguage},
		} {
			if f.v == nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", f.name+" is required", nil)
				return
			}
		}

		now := time.Now().UTC()
		p := &models.Profile{ID: uuid.New(), Level: "beginner", CreatedAt: now, UpdatedAt: now}
		if msg := req.apply(p); msg != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		if err := ps.CreateProfile(r.Context(), p); err != nil {
			writeError(w, r, err)
			return
		}

		raw, key, err := GenerateAPIKey(p.ID, "default", DefaultScopes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := ps.CreateAPIKey(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		}

		response.Created(w, createdProfile{Profile: p, APIKey: createdKey{APIKey: key, Key: raw}})
	}
}

// NewGetProfileHandler returns an http.HandlerFunc for GET /api/v1/profiles/me.
func NewGetProfileHandler(ps ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		p, err := ps.GetProfile(r.Context(), profileID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, p)
	}
}

// NewUpdateProfileHandler returns an http.HandlerFunc for PATCH
// /api/v1/profiles/me. Absent fields are left unchanged.
func NewUpdateProfileHandler(ps ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := profileFrom(w, r)
		if !ok {
			return
		}
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := ps.GetProfile(r.Context(), profileID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if msg := req.apply(p); msg != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}
		if err := ps.UpdateProfile(r.Context(), p); err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, p)
	}
}

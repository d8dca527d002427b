package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/lingocast/internal/api/middleware"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every raw key this service issues.
const KeyPrefix = "lc_"

// DefaultScopes are granted to learner keys.
var DefaultScopes = []string{"read", "write"}

var knownScopes = map[string]bool{"read": true, "write": true, "admin": true}

// KeyStore is the persistence the key endpoints need.
type KeyStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, profileID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, profileID uuid.UUID) error
}

// GenerateAPIKey returns a new raw key together with the record to store.
// The raw key is never persisted.
func GenerateAPIKey(profileID uuid.UUID, name string, scopes []string) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("reading random bytes: %w", err)
	}
	raw := KeyPrefix + hex.EncodeToString(buf)
	key, err := NewAPIKeyRecord(profileID, name, raw, scopes)
	if err != nil {
		return "", nil, err
	}
	return raw, key, nil
}

// NewAPIKeyRecord hashes an existing raw key into a storable record.
func NewAPIKeyRecord(profileID uuid.UUID, name, raw string, scopes []string) (*models.APIKey, error) {
	if len(raw) < mw.KeyPrefixLen {
		return nil, fmt.Errorf("api key must be at least %d characters", mw.KeyPrefixLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing api key: %w", err)
	}
	now := time.Now().UTC()
	return &models.APIKey{
		ID:        uuid.New(),
		ProfileID: profileID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type createdKey struct {
	*models.APIKey
	Key string `json:"key"`
}

// targetProfile resolves the optional profile_id an admin acts on, defaulting
// to the caller's own profile.
func targetProfile(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	if raw == "" {
		return profileFrom(w, r)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid profile_id format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
func NewCreateKeyHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name      string   `json:"name"`
			ProfileID string   `json:"profile_id"`
			Scopes    []string `json:"scopes"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = DefaultScopes
		}
		for _, s := range req.Scopes {
			if !knownScopes[s] {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown scope "+s, nil)
				return
			}
		}

		profileID, ok := targetProfile(w, r, req.ProfileID)
		if !ok {
			return
		}
		if _, err := ks.GetProfile(r.Context(), profileID); err != nil {
			writeError(w, r, err)
			return
		}

		raw, key, err := GenerateAPIKey(profileID, req.Name, req.Scopes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := ks.CreateAPIKey(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		}

		response.Created(w, createdKey{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, ok := targetProfile(w, r, r.URL.Query().Get("profile_id"))
		if !ok {
			return
		}
		keys, err := ks.ListAPIKeys(r.Context(), profileID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for
// DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID, ok := uuidParam(w, r, "keyID", "INVALID_KEY_ID")
		if !ok {
			return
		}
		profileID, ok := targetProfile(w, r, r.URL.Query().Get("profile_id"))
		if !ok {
			return
		}
		if err := ks.RevokeAPIKey(r.Context(), keyID, profileID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

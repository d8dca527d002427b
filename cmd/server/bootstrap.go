package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/lingocast/internal/api/handler"
	mw "github.com/kiranshivaraju/lingocast/internal/api/middleware"
	"github.com/kiranshivaraju/lingocast/internal/store"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

var adminScopes = []string{"read", "write", "admin"}

// ensureAdminKey installs raw as an admin-scoped key owned by an operator
// profile. It reports whether anything was created; a key already stored
// under raw is left untouched.
func ensureAdminKey(ctx context.Context, s store.Store, raw string) (bool, error) {
	if len(raw) < mw.KeyPrefixLen {
		return false, fmt.Errorf("admin key shorter than %d characters", mw.KeyPrefixLen)
	}

	existing, err := s.GetAPIKeyByPrefix(ctx, raw[:mw.KeyPrefixLen])
	if err != nil {
		return false, fmt.Errorf("looking up admin key: %w", err)
	}
	for _, k := range existing {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(raw)) == nil {
			return false, nil
		}
	}

	now := time.Now().UTC()
	operator := &models.Profile{
		ID:             uuid.New(),
		DisplayName:    "operator",
		NativeLanguage: "en",
		TargetLanguage: "en",
		Level:          "advanced",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.CreateProfile(ctx, operator); err != nil {
		return false, fmt.Errorf("creating operator profile: %w", err)
	}

	key, err := handler.NewAPIKeyRecord(operator.ID, "admin", raw, adminScopes)
	if err != nil {
		return false, err
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return false, fmt.Errorf("storing admin key: %w", err)
	}
	return true, nil
}

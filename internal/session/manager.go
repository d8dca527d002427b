// Package session keeps per-learner app sessions in the cache. Each session
// carries its own language and recording state, so concurrent sessions never
// share it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/cache"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyRecording = errors.New("session is already recording")
	ErrNotRecording     = errors.New("session is not recording")
	ErrInvalidLanguage  = errors.New("language is required")
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 12 * time.Hour

// Manager creates and mutates sessions. Sessions are stored as JSON under
// cache.SessionKey and expire DefaultTTL after their last change.
type Manager struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(c cache.Cache) *Manager {
	return &Manager{cache: c, ttl: DefaultTTL, now: func() time.Time { return time.Now().UTC() }}
}

// Start opens a new session in the given language.
func (m *Manager) Start(ctx context.Context, profileID uuid.UUID, language string) (*models.Session, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return nil, ErrInvalidLanguage
	}

	now := m.now()
	s := &models.Session{
		ID:        uuid.New(),
		ProfileID: profileID,
		Language:  language,
		Recording: models.RecordingIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the session if it exists and belongs to profileID.
func (m *Manager) Get(ctx context.Context, profileID, id uuid.UUID) (*models.Session, error) {
	data, ok, err := m.cache.Get(ctx, cache.SessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if s.ProfileID != profileID {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *Manager) SetLanguage(ctx context.Context, profileID, id uuid.UUID, language string) (*models.Session, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return nil, ErrInvalidLanguage
	}
	return m.update(ctx, profileID, id, func(s *models.Session) error {
		s.Language = language
		return nil
	})
}

// SetLesson records the lesson the learner is working through. An empty
// title clears it.
func (m *Manager) SetLesson(ctx context.Context, profileID, id uuid.UUID, title string) (*models.Session, error) {
	return m.update(ctx, profileID, id, func(s *models.Session) error {
		if title == "" {
			s.CurrentLesson = nil
			return nil
		}
		s.CurrentLesson = &title
		return nil
	})
}

func (m *Manager) StartRecording(ctx context.Context, profileID, id uuid.UUID) (*models.Session, error) {
	return m.update(ctx, profileID, id, func(s *models.Session) error {
		if s.Recording == models.RecordingActive {
			return ErrAlreadyRecording
		}
		now := m.now()
		s.Recording = models.RecordingActive
		s.RecordingAt = &now
		return nil
	})
}

// StopRecording ends the active recording and reports how long it ran.
func (m *Manager) StopRecording(ctx context.Context, profileID, id uuid.UUID) (*models.Session, time.Duration, error) {
	var elapsed time.Duration
	s, err := m.update(ctx, profileID, id, func(s *models.Session) error {
		if s.Recording != models.RecordingActive {
			return ErrNotRecording
		}
		if s.RecordingAt != nil {
			elapsed = m.now().Sub(*s.RecordingAt)
		}
		s.Recording = models.RecordingIdle
		s.RecordingAt = nil
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return s, elapsed, nil
}

// End deletes the session.
func (m *Manager) End(ctx context.Context, profileID, id uuid.UUID) error {
	if _, err := m.Get(ctx, profileID, id); err != nil {
		return err
	}
	if err := m.cache.Delete(ctx, cache.SessionKey(id)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// update is a read-modify-write. Two concurrent writers to the same session
// resolve last-write-wins.
func (m *Manager) update(ctx context.Context, profileID, id uuid.UUID, mutate func(*models.Session) error) (*models.Session, error) {
	s, err := m.Get(ctx, profileID, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = m.now()
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) save(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.cache.Set(ctx, cache.SessionKey(s.ID), data, m.ttl); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Package practice grades a learner's spoken attempt at a phrase: the audio is
// transcribed, the tutor compares the transcript with the phrase and the
// outcome is stored as the learner's practice history.
package practice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lingocast/internal/ai"
	"github.com/kiranshivaraju/lingocast/internal/speech"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

var (
	ErrInvalidAttempt      = errors.New("invalid practice attempt")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

const (
	maxPhraseLen   = 500
	defaultHistory = 50
	maxHistory     = 200
)

// Grader scores a transcript against the intended phrase.
type Grader interface {
	Feedback(ctx context.Context, p ai.FeedbackParams) (*ai.Feedback, error)
}

// AttemptStore persists practice attempts.
type AttemptStore interface {
	CreatePracticeAttempt(ctx context.Context, a *models.PracticeAttempt) error
	ListPracticeAttempts(ctx context.Context, profileID uuid.UUID, limit int) ([]*models.PracticeAttempt, error)
}

// Params is one spoken attempt.
type Params struct {
	ProfileID      uuid.UUID
	Phrase         string
	Language       string
	NativeLanguage string
	Audio          io.Reader
	Filename       string
}

type Service struct {
	transcriber speech.Transcriber
	grader      Grader
	store       AttemptStore
}

func NewService(t speech.Transcriber, g Grader, s AttemptStore) *Service {
	return &Service{transcriber: t, grader: g, store: s}
}

// Submit transcribes, grades and records one attempt.
func (s *Service) Submit(ctx context.Context, p Params) (*models.PracticeAttempt, error) {
	phrase := strings.TrimSpace(p.Phrase)
	if phrase == "" {
		return nil, fmt.Errorf("%w: phrase is required", ErrInvalidAttempt)
	}
	if len(phrase) > maxPhraseLen {
		return nil, fmt.Errorf("%w: phrase exceeds %d bytes", ErrInvalidAttempt, maxPhraseLen)
	}
	if p.Language == "" {
		return nil, fmt.Errorf("%w: language is required", ErrInvalidAttempt)
	}
	if p.Audio == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAttempt, speech.ErrEmptyAudio)
	}

	transcript, err := s.transcriber.Transcribe(ctx, speech.TranscribeRequest{
		Audio:    p.Audio,
		Filename: p.Filename,
		Language: p.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	fb, err := s.grader.Feedback(ctx, ai.FeedbackParams{
		Phrase:         phrase,
		Transcript:     transcript.Text,
		Language:       p.Language,
		NativeLanguage: p.NativeLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("grading attempt: %w", err)
	}

	attempt := &models.PracticeAttempt{
		ID:         uuid.New(),
		ProfileID:  p.ProfileID,
		Phrase:     phrase,
		Language:   p.Language,
		Transcript: transcript.Text,
		Score:      fb.Score,
		Feedback:   fb.Feedback,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreatePracticeAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("storing practice attempt: %w", err)
	}

	slog.Info("practice attempt graded",
		"attempt_id", attempt.ID, "profile_id", p.ProfileID, "score", attempt.Score, "provider", fb.Provider)
	return attempt, nil
}

// History returns the most recent attempts, newest first.
func (s *Service) History(ctx context.Context, profileID uuid.UUID, limit int) ([]*models.PracticeAttempt, error) {
	if limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	attempts, err := s.store.ListPracticeAttempts(ctx, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing practice attempts: %w", err)
	}
	return attempts, nil
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/lingocast/internal/httpclient"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

const (
	maxScriptBytes   = 4000
	maxFeedbackBytes = 2000
	maxPhrases       = 10
	defaultPhrases   = 5
)

// LessonParams holds validated parameters for a lesson request.
type LessonParams struct {
	TargetLanguage string
	NativeLanguage string
	Level          string
	Topic          string
	Phrases        int
}

// Phrase is one practice sentence in a lesson.
type Phrase struct {
	Text        string `json:"text"`
	Translation string `json:"translation"`
}

// Lesson is a short script an avatar can read plus phrases to practise.
type Lesson struct {
	Title    string   `json:"title"`
	Script   string   `json:"script"`
	Phrases  []Phrase `json:"phrases"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
}

// FeedbackParams compares what the learner said with what they meant to say.
type FeedbackParams struct {
	Phrase         string
	Transcript     string
	Language       string
	NativeLanguage string
}

// Feedback is the tutor's assessment of one practice attempt.
type Feedback struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
	Provider string  `json:"provider"`
}

// TutorService turns generated text into lessons and pronunciation feedback.
type TutorService struct {
	provider models.TextGenerator
	timeout  time.Duration
}

// NewTutorService creates a new TutorService.
func NewTutorService(provider models.TextGenerator, timeout time.Duration) *TutorService {
	return &TutorService{provider: provider, timeout: timeout}
}

// ProviderName returns the name of the configured text generator.
func (s *TutorService) ProviderName() string { return s.provider.Name() }

const lessonSystem = `You are a friendly language tutor writing short video lessons.
Reply with a JSON object: {"title": string, "script": string, "phrases": [{"text": string, "translation": string}]}.
The script is read aloud by a video avatar, so it must be plain spoken text in the target language.`

// GenerateLesson asks the provider for a lesson on a topic.
func (s *TutorService) GenerateLesson(ctx context.Context, p LessonParams) (*Lesson, error) {
	if p.TargetLanguage == "" || strings.TrimSpace(p.Topic) == "" {
		return nil, fmt.Errorf("%w: target language and topic are required", ErrInvalidInput)
	}
	if p.Phrases <= 0 {
		p.Phrases = defaultPhrases
	}
	if p.Phrases > maxPhrases {
		p.Phrases = maxPhrases
	}
	if p.Level == "" {
		p.Level = "beginner"
	}

	prompt := fmt.Sprintf(
		"Target language: %s\nLearner's native language: %s\nLevel: %s\nTopic: %s\nWrite a lesson script of about 120 words and %d practice phrases with translations into the native language.",
		p.TargetLanguage, orDefault(p.NativeLanguage, "en"), p.Level, p.Topic, p.Phrases,
	)

	res, err := s.generate(ctx, models.GenerateRequest{
		System:      lessonSystem,
		Prompt:      prompt,
		MaxTokens:   1200,
		Temperature: 0.7,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	var lesson Lesson
	if err := decodeJSONReply(res.Text, &lesson); err != nil {
		return nil, err
	}
	if lesson.Script == "" {
		return nil, fmt.Errorf("%w: lesson has no script", ErrInvalidResponse)
	}

	lesson.Script = truncateString(lesson.Script, maxScriptBytes)
	if len(lesson.Phrases) > maxPhrases {
		lesson.Phrases = lesson.Phrases[:maxPhrases]
	}
	lesson.Provider = s.provider.Name()
	lesson.Model = res.Model
	return &lesson, nil
}

const feedbackSystem = `You are a pronunciation coach. Compare the phrase the learner intended to say with the speech-to-text transcript of what they said.
Reply with a JSON object: {"score": number between 0 and 1, "feedback": string}. Write the feedback in the learner's native language, at most three sentences.`

// Feedback grades one attempt. An empty transcript scores 0 without calling
// the provider.
func (s *TutorService) Feedback(ctx context.Context, p FeedbackParams) (*Feedback, error) {
	if strings.TrimSpace(p.Phrase) == "" {
		return nil, fmt.Errorf("%w: phrase is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Transcript) == "" {
		return &Feedback{Score: 0, Feedback: "No speech was detected. Try again a little closer to the microphone.", Provider: s.provider.Name()}, nil
	}

	prompt := fmt.Sprintf("Language: %s\nNative language: %s\nIntended phrase: %q\nTranscript: %q",
		p.Language, orDefault(p.NativeLanguage, "en"), p.Phrase, p.Transcript)

	res, err := s.generate(ctx, models.GenerateRequest{
		System:      feedbackSystem,
		Prompt:      prompt,
		MaxTokens:   300,
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	var fb Feedback
	if err := decodeJSONReply(res.Text, &fb); err != nil {
		return nil, err
	}

	// Clamp score to [0, 1]
	if fb.Score < 0 {
		fb.Score = 0
	}
	if fb.Score > 1.0 {
		fb.Score = 1.0
	}
	fb.Feedback = truncateString(fb.Feedback, maxFeedbackBytes)
	fb.Provider = s.provider.Name()
	return &fb, nil
}

func (s *TutorService) generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.provider.Generate(genCtx, req)
	if err != nil {
		slog.Warn("text generation failed", "provider", s.provider.Name(), "error", err)
		return models.GenerateResult{}, classify(err)
	}
	return res, nil
}

// classify maps transport failures onto this package's sentinel errors so the
// API layer only needs to know about ai errors.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrInferenceTimeout), errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrInvalidResponse):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, httpclient.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	case errors.Is(err, httpclient.ErrInvalidResponse):
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	case errors.Is(err, httpclient.ErrUnreachable),
		httpclient.HasStatus(err, http.StatusTooManyRequests),
		httpclient.HasStatus(err, http.StatusServiceUnavailable):
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.Code >= 500 {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}

// decodeJSONReply tolerates models that wrap their JSON in prose or code fences.
func decodeJSONReply(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: reply is not JSON", ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// Package speech transcribes recorded audio with a hosted speech-to-text model.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/httpclient"
)

var ErrEmptyAudio = errors.New("audio is empty")

// Transcriber is what the practice flow depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (Transcript, error)
}

// TranscribeRequest is one audio clip to transcribe. Language is an ISO-639-1
// hint; leave empty to let the model detect it.
type TranscribeRequest struct {
	Audio    io.Reader
	Filename string
	Language string
}

type Transcript struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Client calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type Client struct {
	http  *httpclient.Client
	model string
}

func NewClient(cfg config.SpeechConfig) *Client {
	return &Client{
		http:  httpclient.New(cfg.BaseURL, cfg.Timeout, httpclient.WithBearerToken(cfg.APIKey)),
		model: cfg.Model,
	}
}

func (c *Client) Transcribe(ctx context.Context, req TranscribeRequest) (Transcript, error) {
	if req.Audio == nil {
		return Transcript{}, ErrEmptyAudio
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.m4a"
	}

	fields := map[string]string{
		"model":           c.model,
		"response_format": "verbose_json",
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}

	var out Transcript
	err := c.http.PostMultipart(ctx, "/v1/audio/transcriptions", fields,
		httpclient.FilePart{Field: "file", Filename: filename, Content: req.Audio}, &out)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribing audio: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	return out, nil
}

var _ Transcriber = (*Client)(nil)

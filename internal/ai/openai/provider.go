package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/httpclient"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// Provider implements models.TextGenerator against the chat completions API.
// It also serves any OpenAI-compatible server (see NewCompatible).
type Provider struct {
	name  string
	model string
	http  *httpclient.Client
}

func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model, timeout)
}

// NewCompatible builds a Provider for a server exposing /v1/chat/completions.
// apiKey may be empty for self-hosted servers.
func NewCompatible(name, baseURL, apiKey, model string, timeout time.Duration) *Provider {
	var opts []httpclient.Option
	if apiKey != "" {
		opts = append(opts, httpclient.WithBearerToken(apiKey))
	}
	return &Provider{
		name:  name,
		model: model,
		http:  httpclient.New(baseURL, timeout, opts...),
	}
}

func (p *Provider) Name() string { return p.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []message `json:"messages"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	Temperature    float64   `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	body := chatRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, message{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, message{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	var out chatResponse
	if err := p.http.DoJSON(ctx, http.MethodPost, "/v1/chat/completions", body, &out); err != nil {
		return models.GenerateResult{}, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return models.GenerateResult{}, fmt.Errorf("%s chat completion: %w: no choices", p.name, httpclient.ErrInvalidResponse)
	}

	model := out.Model
	if model == "" {
		model = p.model
	}
	return models.GenerateResult{Text: out.Choices[0].Message.Content, Model: model}, nil
}

var _ models.TextGenerator = (*Provider)(nil)

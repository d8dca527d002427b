package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/httpclient"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Provider implements models.TextGenerator using the Anthropic messages API.
type Provider struct {
	model string
	http  *httpclient.Client
}

func NewProvider(cfg config.AnthropicConfig, timeout time.Duration) *Provider {
	return &Provider{
		model: cfg.Model,
		http: httpclient.New(cfg.BaseURL, timeout,
			httpclient.WithHeader("x-api-key", cfg.APIKey),
			httpclient.WithHeader("anthropic-version", apiVersion),
		),
	}
}

func (p *Provider) Name() string { return "anthropic" }

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	system := req.System
	if req.JSON {
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}

	body := messagesRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: req.Temperature,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
	}

	var out messagesResponse
	if err := p.http.DoJSON(ctx, http.MethodPost, "/v1/messages", body, &out); err != nil {
		return models.GenerateResult{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return models.GenerateResult{}, fmt.Errorf("anthropic messages: %w: no text content", httpclient.ErrInvalidResponse)
	}

	model := out.Model
	if model == "" {
		model = p.model
	}
	return models.GenerateResult{Text: sb.String(), Model: model}, nil
}

var _ models.TextGenerator = (*Provider)(nil)

package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/httpclient"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// Provider implements models.TextGenerator using Ollama.
type Provider struct {
	model string
	http  *httpclient.Client
}

func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *Provider {
	return &Provider{
		model: cfg.Model,
		http:  httpclient.New(cfg.BaseURL, timeout),
	}
}

func (p *Provider) Name() string { return "ollama" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResult, error) {
	body := chatRequest{Model: p.model, Stream: false}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.Format = "json"
	}
	body.Options.Temperature = req.Temperature
	body.Options.NumPredict = req.MaxTokens

	var out chatResponse
	if err := p.http.DoJSON(ctx, http.MethodPost, "/api/chat", body, &out); err != nil {
		return models.GenerateResult{}, fmt.Errorf("ollama chat: %w", err)
	}
	if out.Message.Content == "" {
		return models.GenerateResult{}, fmt.Errorf("ollama chat: %w: empty message", httpclient.ErrInvalidResponse)
	}

	model := out.Model
	if model == "" {
		model = p.model
	}
	return models.GenerateResult{Text: out.Message.Content, Model: model}, nil
}

var _ models.TextGenerator = (*Provider)(nil)

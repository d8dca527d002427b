package vllm

import (
	"time"

	"github.com/kiranshivaraju/lingocast/internal/ai/openai"
	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// Provider implements models.TextGenerator using vLLM's OpenAI-compatible server.
type Provider struct {
	*openai.Provider
}

func NewProvider(cfg config.VLLMConfig, timeout time.Duration) *Provider {
	return &Provider{openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model, timeout)}
}

var _ models.TextGenerator = (*Provider)(nil)

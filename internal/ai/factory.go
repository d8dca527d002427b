package ai

import (
	"fmt"

	"github.com/kiranshivaraju/lingocast/internal/ai/anthropic"
	"github.com/kiranshivaraju/lingocast/internal/ai/ollama"
	"github.com/kiranshivaraju/lingocast/internal/ai/openai"
	"github.com/kiranshivaraju/lingocast/internal/ai/vllm"
	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/pkg/models"
)

// NewProvider constructs the appropriate text generator based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.TextGenerator, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}

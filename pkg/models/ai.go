// Package models contains shared data models used across the lingocast codebase.
package models

import "context"

// TextGenerator is the core interface that all generative-text integrations must implement.
// Never call specific providers directly; always inject this interface.
type TextGenerator interface {
	// Generate sends one system/user prompt pair and returns the model's reply.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// GenerateRequest is the input to a single text generation call.
type GenerateRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider to reply with a single JSON object when it supports it.
	JSON bool
}

// GenerateResult is the output of a text generation call.
type GenerateResult struct {
	Text  string
	Model string
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the lingocast server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Avatar   AvatarConfig
	Legacy   LegacyVideoConfig
	Poll     PollConfig
	AI       AIConfig
	Speech   SpeechConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	// AdminKey, when set, is installed at startup as an admin-scoped API key.
	AdminKey string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// AvatarConfig configures the text-to-video avatar platform.
type AvatarConfig struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec float64
	Timeout        time.Duration
}

// LegacyVideoConfig configures the video platform being phased out.
// It is optional: an empty BaseURL disables the legacy render kind.
type LegacyVideoConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Enabled reports whether the legacy platform is configured.
func (c LegacyVideoConfig) Enabled() bool { return c.BaseURL != "" }

// PollConfig bounds how long remote render jobs are tracked.
type PollConfig struct {
	MaxAttempts      int
	Interval         time.Duration
	TrainingInterval time.Duration
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// SpeechConfig configures the speech-to-text model.
type SpeechConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("LINGOCAST_PORT", 8080),
			Env:                envString("LINGOCAST_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			AdminKey:           os.Getenv("ADMIN_API_KEY"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Avatar: AvatarConfig{
			BaseURL:        envString("AVATAR_BASE_URL", "https://api.heygen.com"),
			APIKey:         os.Getenv("AVATAR_API_KEY"),
			RequestsPerSec: envFloat("AVATAR_REQUESTS_PER_SEC", 2),
			Timeout:        envDuration("AVATAR_TIMEOUT", 30*time.Second),
		},
		Legacy: LegacyVideoConfig{
			BaseURL: os.Getenv("LEGACY_VIDEO_BASE_URL"),
			APIKey:  os.Getenv("LEGACY_VIDEO_API_KEY"),
			Timeout: envDuration("LEGACY_VIDEO_TIMEOUT", 30*time.Second),
		},
		Poll: PollConfig{
			MaxAttempts:      envInt("POLL_MAX_ATTEMPTS", 60),
			Interval:         envDuration("POLL_INTERVAL", 5*time.Second),
			TrainingInterval: envDuration("TRAINING_POLL_INTERVAL", 30*time.Second),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Speech: SpeechConfig{
			BaseURL: envString("SPEECH_BASE_URL", "https://api.openai.com"),
			APIKey:  os.Getenv("SPEECH_API_KEY"),
			Model:   envString("SPEECH_MODEL", "whisper-1"),
			Timeout: envDuration("SPEECH_TIMEOUT", 60*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.AdminKey != "" && len(c.Server.AdminKey) < minAdminKeyLen {
		return fmt.Errorf("ADMIN_API_KEY must be at least %d characters", minAdminKeyLen)
	}
	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be a positive integer, got %d", c.Server.RateLimitPerMinute)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Avatar.APIKey == "" {
		return fmt.Errorf("AVATAR_API_KEY is required")
	}
	if !isHTTPURL(c.Avatar.BaseURL) {
		return fmt.Errorf("AVATAR_BASE_URL must start with http:// or https://, got %q", c.Avatar.BaseURL)
	}
	if c.Avatar.RequestsPerSec <= 0 {
		return fmt.Errorf("AVATAR_REQUESTS_PER_SEC must be positive, got %v", c.Avatar.RequestsPerSec)
	}

	if c.Legacy.Enabled() {
		if !isHTTPURL(c.Legacy.BaseURL) {
			return fmt.Errorf("LEGACY_VIDEO_BASE_URL must start with http:// or https://, got %q", c.Legacy.BaseURL)
		}
		if c.Legacy.APIKey == "" {
			return fmt.Errorf("LEGACY_VIDEO_API_KEY is required when LEGACY_VIDEO_BASE_URL is set")
		}
	}

	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be a positive integer, got %d", c.Poll.MaxAttempts)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.TrainingInterval <= 0 {
		return fmt.Errorf("TRAINING_POLL_INTERVAL must be positive, got %s", c.Poll.TrainingInterval)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}

	if c.Speech.APIKey == "" {
		return fmt.Errorf("SPEECH_API_KEY is required")
	}
	if !isHTTPURL(c.Speech.BaseURL) {
		return fmt.Errorf("SPEECH_BASE_URL must start with http:// or https://, got %q", c.Speech.BaseURL)
	}

	return nil
}

const minAdminKeyLen = 16

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

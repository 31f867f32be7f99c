package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Text-generation providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultGeminiModel    = "gemini-1.5-flash"
)

type Config struct {
	Port                int
	DatabaseURL         string
	LogLevel            string
	NatsURL             string
	NatsToken           string
	LLMProvider         string
	AnthropicAPIKey     string
	GeminiAPIKey        string
	DefaultModel        string
	SlackBotToken       string
	SlackChannel        string
	APIToken            string
	CORSOrigins         []string
	ClassifySchedule    string
	ClassifyConcurrency int
}

func Load() Config {
	return Config{
		Port:                envInt("SENSEI_PORT", 8760),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		LogLevel:            envStr("LOG_LEVEL", "info"),
		NatsURL:             envStr("NATS_URL", ""),
		NatsToken:           envStr("NATS_TOKEN", ""),
		LLMProvider:         strings.ToLower(envStr("SENSEI_LLM_PROVIDER", ProviderAnthropic)),
		AnthropicAPIKey:     envStr("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:        envStr("GEMINI_API_KEY", ""),
		DefaultModel:        envStr("SENSEI_DEFAULT_MODEL", ""),
		SlackBotToken:       envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:        envStr("SLACK_ALERTS_CHANNEL", ""),
		APIToken:            envStr("SENSEI_API_TOKEN", ""),
		CORSOrigins:         envList("SENSEI_CORS_ORIGINS"),
		ClassifySchedule:    envStr("SENSEI_CLASSIFY_SCHEDULE", ""),
		ClassifyConcurrency: envInt("SENSEI_CLASSIFY_CONCURRENCY", 3),
	}
}

// LoadDotEnv copies KEY=VALUE pairs from files into the environment.
// Variables that are already set win. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Model is the model used when no active agent names one.
func (c Config) Model() string {
	if c.DefaultModel != "" {
		return c.DefaultModel
	}
	if c.LLMProvider == ProviderGemini {
		return defaultGeminiModel
	}
	return defaultAnthropicModel
}

// Validate checks what every command that touches the pipeline needs.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown SENSEI_LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

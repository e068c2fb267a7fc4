// Package openrouter routes chat completions through OpenRouter's
// OpenAI-compatible API.
package openrouter

import (
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/infrastructure/llm"
	"github.com/aria-ai/aria/internal/infrastructure/llm/openai"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

func init() {
	llm.RegisterFactory("openrouter", func(cfg llm.Config, logger *zap.Logger) (llm.Adapter, error) {
		return New(cfg, logger), nil
	})
}

// New creates an OpenRouter adapter. The wire format is the chat
// completions dialect, so the openai adapter does the work; OpenRouter
// additionally wants attribution headers on every request.
func New(cfg llm.Config, logger *zap.Logger) llm.Adapter {
	headers := map[string]string{
		"HTTP-Referer": "https://github.com/aria-ai/aria",
		"X-Title":      "aria",
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers
	return openai.NewCompat("openrouter", defaultBaseURL, cfg, logger)
}

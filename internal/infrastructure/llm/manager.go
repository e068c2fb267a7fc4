package llm

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/pkg/errors"
)

// Credentials carries per-backend connection material. Missing cloud keys
// are legal until the backend is actually requested.
type Credentials struct {
	OllamaURL        string
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
}

// Manager hands out adapters from a (backend, model) keyed cache and
// gates cloud backends on configured credentials.
type Manager struct {
	creds  Credentials
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]Adapter
}

// NewManager creates the adapter manager.
func NewManager(creds Credentials, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if creds.OllamaURL == "" {
		creds.OllamaURL = "http://localhost:11434"
	}
	return &Manager{
		creds:  creds,
		logger: logger,
		cache:  make(map[string]Adapter),
	}
}

// Adapter returns the cached adapter for (backend, model), constructing
// it on first use. A cloud backend without its credential fails with a
// CONFIG_ERROR, which the fallback chain treats as "try the next entry".
func (m *Manager) Adapter(backend, model string) (Adapter, error) {
	key := backend + "/" + model

	m.mu.RLock()
	a, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return a, nil
	}

	cfg, err := m.adapterConfig(backend, model)
	if err != nil {
		return nil, err
	}

	a, err = NewAdapter(backend, cfg, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.cache[key]; ok {
		return cached, nil
	}
	m.cache[key] = a
	m.logger.Info("LLM adapter created",
		zap.String("backend", backend),
		zap.String("model", model),
	)
	return a, nil
}

// IsAvailable is the non-throwing probe behind the fallback logic and
// the health endpoint: local backends are pinged, cloud backends are
// judged by credential presence.
func (m *Manager) IsAvailable(ctx context.Context, backend string) (bool, string) {
	switch backend {
	case "ollama":
		return m.probeOllama(ctx)
	case "anthropic":
		if m.creds.AnthropicAPIKey == "" {
			return false, "anthropic.api_key not configured"
		}
		return true, "configured"
	case "openai":
		if m.creds.OpenAIAPIKey == "" {
			return false, "openai.api_key not configured"
		}
		return true, "configured"
	case "openrouter":
		if m.creds.OpenRouterAPIKey == "" {
			return false, "openrouter.api_key not configured"
		}
		return true, "configured"
	default:
		return false, "unknown backend " + backend
	}
}

// Backends lists the backend names the manager knows how to gate.
func (m *Manager) Backends() []string {
	return []string{"ollama", "anthropic", "openai", "openrouter"}
}

func (m *Manager) adapterConfig(backend, model string) (Config, error) {
	cfg := Config{Model: model}
	switch backend {
	case "ollama":
		cfg.BaseURL = m.creds.OllamaURL
	case "anthropic":
		if m.creds.AnthropicAPIKey == "" {
			return cfg, errors.NewConfigError("anthropic backend requested but anthropic.api_key is not set")
		}
		cfg.APIKey = m.creds.AnthropicAPIKey
	case "openai":
		if m.creds.OpenAIAPIKey == "" {
			return cfg, errors.NewConfigError("openai backend requested but openai.api_key is not set")
		}
		cfg.APIKey = m.creds.OpenAIAPIKey
	case "openrouter":
		if m.creds.OpenRouterAPIKey == "" {
			return cfg, errors.NewConfigError("openrouter backend requested but openrouter.api_key is not set")
		}
		cfg.APIKey = m.creds.OpenRouterAPIKey
	default:
		return cfg, errors.NewConfigError("unknown LLM backend: " + backend)
	}
	return cfg, nil
}

func (m *Manager) probeOllama(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.creds.OllamaURL+"/api/tags", nil)
	if err != nil {
		return false, "invalid ollama.url: " + err.Error()
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, "ollama unreachable: " + err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, "ollama returned status " + resp.Status
	}
	return true, "reachable"
}

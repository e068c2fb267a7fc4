package llm_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/infrastructure/llm"
	"github.com/aria-ai/aria/pkg/errors"

	_ "github.com/aria-ai/aria/internal/infrastructure/llm/anthropic"
	_ "github.com/aria-ai/aria/internal/infrastructure/llm/ollama"
	_ "github.com/aria-ai/aria/internal/infrastructure/llm/openai"
	_ "github.com/aria-ai/aria/internal/infrastructure/llm/openrouter"
)

func TestManager_CloudBackendWithoutKeyIsConfigError(t *testing.T) {
	m := llm.NewManager(llm.Credentials{}, zap.NewNop())

	for _, backend := range []string{"anthropic", "openai", "openrouter"} {
		_, err := m.Adapter(backend, "some-model")
		if err == nil {
			t.Errorf("%s: expected error without credential", backend)
			continue
		}
		if !errors.IsConfigError(err) {
			t.Errorf("%s: expected CONFIG_ERROR, got %v", backend, err)
		}
	}
}

func TestManager_AdapterIsCachedPerBackendModel(t *testing.T) {
	m := llm.NewManager(llm.Credentials{AnthropicAPIKey: "k"}, zap.NewNop())

	a1, err := m.Adapter("anthropic", "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("first adapter: %v", err)
	}
	a2, err := m.Adapter("anthropic", "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("second adapter: %v", err)
	}
	if a1 != a2 {
		t.Error("same (backend, model) returned distinct adapters")
	}

	other, err := m.Adapter("anthropic", "claude-haiku-4-5")
	if err != nil {
		t.Fatalf("other model: %v", err)
	}
	if other == a1 {
		t.Error("distinct models shared an adapter")
	}
}

func TestManager_UnknownBackend(t *testing.T) {
	m := llm.NewManager(llm.Credentials{}, zap.NewNop())
	if _, err := m.Adapter("mystery", "m"); !errors.IsConfigError(err) {
		t.Errorf("expected CONFIG_ERROR, got %v", err)
	}
	if ok, reason := m.IsAvailable(context.Background(), "mystery"); ok || reason == "" {
		t.Errorf("IsAvailable = %v, %q", ok, reason)
	}
}

func TestManager_IsAvailableReportsCredentialState(t *testing.T) {
	m := llm.NewManager(llm.Credentials{OpenAIAPIKey: "k"}, zap.NewNop())

	if ok, _ := m.IsAvailable(context.Background(), "openai"); !ok {
		t.Error("openai should be available with key set")
	}
	ok, reason := m.IsAvailable(context.Background(), "anthropic")
	if ok {
		t.Error("anthropic should be unavailable without key")
	}
	if reason == "" {
		t.Error("unavailability must carry a reason")
	}
}

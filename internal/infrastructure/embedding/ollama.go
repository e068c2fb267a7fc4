package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OllamaProvider generates embeddings via the Ollama HTTP API.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// ollamaEmbedRequest matches the Ollama /api/embed payload.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// ollamaEmbedResponse matches the Ollama /api/embed response.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaProvider creates an Ollama embedding provider.
func NewOllamaProvider(baseURL, model string, logger *zap.Logger) *OllamaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Name identifies the provider.
func (p *OllamaProvider) Name() string { return "ollama" }

// Embed generates an embedding vector for a single text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.doEmbed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding response from ollama")
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one call.
// Ollama /api/embed natively supports []string input.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.doEmbed(ctx, texts)
}

// doEmbed calls Ollama /api/embed with either string or []string input.
func (p *OllamaProvider) doEmbed(ctx context.Context, input any) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := p.baseURL + "/api/embed"
	send := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return p.client.Do(req)
	}

	resp, err := send()
	if err != nil {
		// Retry once on network error. The request is rebuilt because
		// the failed attempt may have consumed the body reader.
		p.logger.Warn("Ollama embed request failed, retrying", zap.Error(err))
		resp, err = send()
		if err != nil {
			return nil, fmt.Errorf("ollama embed request failed after retry: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(embedResp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned empty embeddings array")
	}

	return embedResp.Embeddings, nil
}

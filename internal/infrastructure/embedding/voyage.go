package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	voyageEndpoint     = "https://api.voyageai.com/v1/embeddings"
	voyageDefaultModel = "voyage-3-large"
)

// VoyageProvider generates embeddings via the Voyage AI API. Used as the
// fallback when an API key is configured.
type VoyageProvider struct {
	apiKey string
	model  string
	client *http.Client
}

type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewVoyageProvider creates a Voyage embedding provider. An empty model
// selects voyage-3-large.
func NewVoyageProvider(apiKey, model string) *VoyageProvider {
	if model == "" {
		model = voyageDefaultModel
	}
	return &VoyageProvider{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Name identifies the provider.
func (p *VoyageProvider) Name() string { return "voyage" }

// Embed generates an embedding vector for a single text.
func (p *VoyageProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("empty embedding response from voyage")
	}
	return vecs[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one call.
func (p *VoyageProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(voyageRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("marshal voyage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voyageEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voyage embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("voyage embed returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var voyageResp voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&voyageResp); err != nil {
		return nil, fmt.Errorf("decode voyage response: %w", err)
	}
	if len(voyageResp.Data) != len(texts) {
		return nil, fmt.Errorf("voyage returned %d embeddings for %d inputs", len(voyageResp.Data), len(texts))
	}

	// The API reports an index per vector; order by it rather than trusting
	// response order.
	vecs := make([][]float32, len(texts))
	for _, d := range voyageResp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("voyage returned out-of-range index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOllamaTestServer(t *testing.T, dim int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		n := 1
		if inputs, ok := req.Input.([]interface{}); ok {
			n = len(inputs)
		}

		embeddings := make([][]float32, n)
		for i := range embeddings {
			vec := make([]float32, dim)
			for j := range vec {
				vec[j] = float32(i+1) * 0.1
			}
			embeddings[i] = vec
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Model: req.Model, Embeddings: embeddings})
	}))
}

func TestOllamaProvider_Embed(t *testing.T) {
	server := newOllamaTestServer(t, 8, nil)
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "test-model", nil)

	vec, err := provider.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("expected 8 dims, got %d", len(vec))
	}
}

func TestOllamaProvider_EmbedBatchSingleCall(t *testing.T) {
	calls := 0
	server := newOllamaTestServer(t, 4, &calls)
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "test-model", nil)

	vecs, err := provider.EmbedBatch(context.Background(), []string{"hello", "world", "test"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if calls != 1 {
		t.Fatalf("expected 1 API call for batch, got %d", calls)
	}
}

func TestOllamaProvider_RetryResendsFullBody(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			// Kill the connection so client.Do fails after the body
			// was handed to the transport.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("retry body unreadable: %v", err)
		}
		if req.Model != "test-model" || req.Input != "hello" {
			t.Fatalf("retry body = %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Model:      req.Model,
			Embeddings: [][]float32{make([]float32, 4)},
		})
	}))
	defer srv.Close()

	provider := NewOllamaProvider(srv.URL, "test-model", nil)
	vec, err := provider.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if attempts != 2 || len(vec) != 4 {
		t.Fatalf("attempts = %d, vec = %v", attempts, vec)
	}
}

func TestService_FallbackOnPrimaryFailure(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	fallbackCalled := false
	fallback := &fakeProvider{name: "fake", dim: 4, onCall: func() { fallbackCalled = true }}

	svc := NewService(NewOllamaProvider(primary.URL, "m", nil), fallback, 4, 32, nil)

	vec, err := svc.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed with fallback failed: %v", err)
	}
	if !fallbackCalled {
		t.Fatal("expected fallback provider to be used")
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 dims, got %d", len(vec))
	}
}

func TestService_BothProvidersFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	failing := &fakeProvider{name: "fake", fail: true}
	svc := NewService(NewOllamaProvider(down.URL, "m", nil), failing, 4, 32, nil)

	if _, err := svc.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error when both providers fail")
	}
}

func TestService_DimensionMismatch(t *testing.T) {
	server := newOllamaTestServer(t, 6, nil)
	defer server.Close()

	svc := NewService(NewOllamaProvider(server.URL, "m", nil), nil, 4, 32, nil)

	if _, err := svc.Embed(context.Background(), "text"); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := svc.Probe(context.Background()); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected probe to report ErrDimensionMismatch, got %v", err)
	}
}

func TestService_ProbeTransportFailureIsNotMismatch(t *testing.T) {
	// An unreachable provider degrades; only a wrong vector length is
	// the fatal sentinel.
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	svc := NewService(NewOllamaProvider(down.URL, "m", nil), nil, 4, 32, nil)

	err := svc.Probe(context.Background())
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("transport failure reported as dimension mismatch: %v", err)
	}
}

func TestService_EmbedBatchOrder(t *testing.T) {
	// Each text's vector encodes its batch index; with batch size 2 the
	// results must still come back in input order.
	provider := &indexedProvider{dim: 2}
	svc := NewService(provider, nil, 2, 2, nil)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Fatalf("vector %d out of order: marker %v", i, v[0])
		}
	}
}

type fakeProvider struct {
	name   string
	dim    int
	fail   bool
	onCall func()
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.onCall != nil {
		f.onCall()
	}
	if f.fail {
		return nil, fmt.Errorf("provider down")
	}
	return make([]float32, f.dim), nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// indexedProvider marks each vector with the input position (derived from
// the single-letter text) so tests can verify ordering across parallel
// batches.
type indexedProvider struct {
	dim int
}

func (p *indexedProvider) Name() string { return "indexed" }

func (p *indexedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, p.dim), nil
}

func (p *indexedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, p.dim)
		v[0] = float32(text[0] - 'a')
		vecs[i] = v
	}
	return vecs, nil
}

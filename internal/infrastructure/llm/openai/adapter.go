// Package openai streams chat completions from OpenAI-compatible HTTP
// endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory("openai", func(cfg llm.Config, logger *zap.Logger) (llm.Adapter, error) {
		return NewCompat("openai", "https://api.openai.com/v1", cfg, logger), nil
	})
}

// Adapter drives one OpenAI-compatible endpoint for one model.
type Adapter struct {
	backend string
	model   string
	baseURL string
	apiKey  string
	headers map[string]string
	client  *http.Client
	logger  *zap.Logger
}

var _ llm.Adapter = (*Adapter)(nil)

// NewCompat creates an adapter for any chat-completions-compatible
// backend. Extra headers from cfg are attached to every request.
func NewCompat(backend, defaultBaseURL string, cfg llm.Config, logger *zap.Logger) *Adapter {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		backend: backend,
		model:   cfg.Model,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("backend", backend), zap.String("model", cfg.Model)),
	}
}

func (a *Adapter) Backend() string { return a.backend }
func (a *Adapter) Model() string   { return a.model }

// Stream sends one generation turn and emits chunks until the terminal
// chunk, then closes the channel.
func (a *Adapter) Stream(ctx context.Context, req *llm.Request) <-chan llm.Chunk {
	ch := make(chan llm.Chunk, 16)
	go func() {
		defer close(ch)
		a.stream(ctx, req, ch)
	}()
	return ch
}

func (a *Adapter) stream(ctx context.Context, req *llm.Request, ch chan<- llm.Chunk) {
	streamBody := StreamRequest{
		Request:       a.buildRequest(req),
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
	}

	body, err := json.Marshal(streamBody)
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("marshal request: "+err.Error()))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("create request: "+err.Error()))
		return
	}
	a.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("HTTP request failed: "+err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		llm.Emit(ctx, ch, llm.ErrorChunk(a.backend+" API error "+resp.Status+": "+llm.TruncateForLog(string(respBody), 500)))
		return
	}

	// Context cancellation body-close watchdog
	streamDone := make(chan struct{})
	defer close(streamDone)
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("Context cancelled, force-closing SSE stream", zap.Error(ctx.Err()))
			resp.Body.Close()
		case <-streamDone:
		}
	}()

	ParseSSEStream(ctx, resp.Body, ch, a.logger)
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
}

func (a *Adapter) buildRequest(req *llm.Request) *Request {
	apiReq := &Request{
		Model:       a.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	for _, msg := range req.Messages {
		apiMsg := Message{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.ToolName,
		}
		for _, tc := range msg.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ToolCallFunc{
					Name:      tc.Name,
					Arguments: MarshalToolCallArgs(tc.Arguments),
				},
			})
		}
		apiReq.Messages = append(apiReq.Messages, apiMsg)
	}

	for _, td := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  ConvertSchema(td.Parameters),
			},
		})
	}

	return apiReq
}

// Package anthropic streams generations from the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

const (
	anthropicVersion = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultMaxTokens = 8192
)

func init() {
	llm.RegisterFactory("anthropic", func(cfg llm.Config, logger *zap.Logger) (llm.Adapter, error) {
		return New(cfg, logger), nil
	})
}

// Adapter drives the Messages API for one model.
type Adapter struct {
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

var _ llm.Adapter = (*Adapter)(nil)

// New creates a Messages API adapter.
func New(cfg llm.Config, logger *zap.Logger) *Adapter {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		model:   cfg.Model,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("backend", "anthropic"), zap.String("model", cfg.Model)),
	}
}

func (a *Adapter) Backend() string { return "anthropic" }
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
	apiReq := a.buildRequest(req)
	apiReq.Stream = true

	body, err := json.Marshal(apiReq)
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("marshal request: "+err.Error()))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("create request: "+err.Error()))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("HTTP request failed: "+err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		llm.Emit(ctx, ch, llm.ErrorChunk("anthropic API error "+resp.Status+": "+llm.TruncateForLog(string(respBody), 500)))
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

func (a *Adapter) buildRequest(req *llm.Request) *Request {
	apiReq := &Request{
		Model:       a.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = defaultMaxTokens // the API requires explicit max_tokens
	}

	var messages []Message
	for _, msg := range req.Messages {
		switch msg.Role {
		case entity.RoleSystem:
			// System prompt is a top-level field, not a message.
			apiReq.System = msg.Content

		case entity.RoleAssistant:
			var blocks []ContentBlock
			if msg.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			if len(blocks) > 0 {
				messages = append(messages, Message{Role: "assistant", Content: blocks})
			}

		case entity.RoleTool:
			// Tool results ride a user turn, referenced by tool_use id.
			messages = append(messages, Message{
				Role: "user",
				Content: []ContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})

		default: // user
			messages = append(messages, Message{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}
	apiReq.Messages = messages

	for _, td := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Name:        td.Name,
			Description: td.Description,
			InputSchema: ConvertSchema(td.Parameters),
		})
	}

	return apiReq
}

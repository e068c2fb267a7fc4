// Package ollama streams chat generations from a local Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

const defaultBaseURL = "http://localhost:11434"

func init() {
	llm.RegisterFactory("ollama", func(cfg llm.Config, logger *zap.Logger) (llm.Adapter, error) {
		return New(cfg, logger), nil
	})
}

// Adapter drives Ollama's /api/chat endpoint for one model. Responses
// stream as newline-delimited JSON rather than SSE.
type Adapter struct {
	model   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ llm.Adapter = (*Adapter)(nil)

// New creates an Ollama adapter. No credential is required.
func New(cfg llm.Config, logger *zap.Logger) *Adapter {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		model:   cfg.Model,
		baseURL: baseURL,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("backend", "ollama"), zap.String("model", cfg.Model)),
	}
}

func (a *Adapter) Backend() string { return "ollama" }
func (a *Adapter) Model() string   { return a.model }

// --- Wire types ---

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Tools    []chatTool     `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatToolFunc `json:"function"`
}

type chatToolFunc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	Error           string      `json:"error,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

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
	apiReq := chatRequest{
		Model:  a.model,
		Stream: true,
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		apiReq.Options = map[string]any{}
		if req.Temperature > 0 {
			apiReq.Options["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			apiReq.Options["num_predict"] = req.MaxTokens
		}
	}

	for _, msg := range req.Messages {
		m := chatMessage{
			Role:     string(msg.Role),
			Content:  msg.Content,
			ToolName: msg.ToolName,
		}
		for _, tc := range msg.ToolCalls {
			var wire chatToolCall
			wire.Function.Name = tc.Name
			wire.Function.Arguments = tc.Arguments
			m.ToolCalls = append(m.ToolCalls, wire)
		}
		apiReq.Messages = append(apiReq.Messages, m)
	}

	for _, td := range req.Tools {
		params := td.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		apiReq.Tools = append(apiReq.Tools, chatTool{
			Type: "function",
			Function: chatToolFunc{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  params,
			},
		})
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("marshal request: "+err.Error()))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("create request: "+err.Error()))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		llm.Emit(ctx, ch, llm.ErrorChunk("HTTP request failed: "+err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		llm.Emit(ctx, ch, llm.ErrorChunk("ollama API error "+resp.Status+": "+llm.TruncateForLog(string(respBody), 500)))
		return
	}

	streamDone := make(chan struct{})
	defer close(streamDone)
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("Context cancelled, force-closing NDJSON stream", zap.Error(ctx.Err()))
			resp.Body.Close()
		case <-streamDone:
		}
	}()

	a.parseNDJSON(ctx, resp.Body, ch)
}

// parseNDJSON reads the newline-delimited JSON stream. Ollama delivers
// tool calls whole, so no fragment accumulation is needed.
func (a *Adapter) parseNDJSON(ctx context.Context, reader io.Reader, ch chan<- llm.Chunk) {
	tReader := &llm.TimedReader{R: reader, Timeout: llm.DefaultIdleTimeout}
	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var toolCalls []entity.ToolCall
	var usage llm.Usage
	sawData := false

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			llm.Emit(ctx, ch, llm.ErrorChunk(ctx.Err().Error()))
			return
		default:
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			a.logger.Debug("Skip unparseable NDJSON line", zap.Error(err))
			continue
		}
		sawData = true

		if chunk.Error != "" {
			llm.Emit(ctx, ch, llm.ErrorChunk("ollama: "+chunk.Error))
			return
		}

		if chunk.Message.Content != "" {
			if !llm.Emit(ctx, ch, llm.TextChunk(chunk.Message.Content)) {
				return
			}
		}

		for _, tc := range chunk.Message.ToolCalls {
			args := tc.Function.Arguments
			if args == nil {
				args = map[string]any{}
			}
			// Ollama assigns no call ids; mint one so tool results can
			// reference their originating call.
			toolCalls = append(toolCalls, entity.ToolCall{
				ID:        uuid.NewString(),
				Name:      tc.Function.Name,
				Arguments: args,
			})
		}

		if chunk.Done {
			usage.InputTokens = chunk.PromptEvalCount
			usage.OutputTokens = chunk.EvalCount
			break
		}
	}

	if err := scanner.Err(); err != nil {
		if llm.IsIdleTimeout(err) {
			a.logger.Warn("NDJSON stream idle timeout, upstream stalled")
			if !sawData {
				llm.Emit(ctx, ch, llm.ErrorChunk(fmt.Sprintf("stream stalled: no data for %v", llm.DefaultIdleTimeout)))
				return
			}
		} else {
			llm.Emit(ctx, ch, llm.ErrorChunk("stream scan error: "+err.Error()))
			return
		}
	}

	for _, tc := range toolCalls {
		if !llm.Emit(ctx, ch, llm.ToolCallChunk(tc)) {
			return
		}
	}
	llm.Emit(ctx, ch, llm.DoneChunk(usage))
}

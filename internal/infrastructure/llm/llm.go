// Package llm defines the uniform streaming contract every LLM backend
// adapter implements, plus the factory registry backends register into.
package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/pkg/errors"
)

// ChunkType tags a streamed chunk.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkDone     ChunkType = "done"
	ChunkError    ChunkType = "error"
)

// Usage reports token consumption for one turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Chunk is one tagged message on the stream between an adapter and its
// caller. Exactly one of the payload fields is set, matching Type.
//
// Ordering contract: text chunks may interleave freely; every tool_call
// chunk arrives before the terminal chunk; exactly one terminal chunk
// (done or error) ends the stream, and nothing follows an error.
type Chunk struct {
	Type     ChunkType        `json:"type"`
	Text     string           `json:"text,omitempty"`
	ToolCall *entity.ToolCall `json:"tool_call,omitempty"`
	Usage    *Usage           `json:"usage,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// TextChunk builds a text chunk.
func TextChunk(s string) Chunk { return Chunk{Type: ChunkText, Text: s} }

// ToolCallChunk builds a tool_call chunk.
func ToolCallChunk(tc entity.ToolCall) Chunk { return Chunk{Type: ChunkToolCall, ToolCall: &tc} }

// DoneChunk builds the success terminal chunk.
func DoneChunk(u Usage) Chunk { return Chunk{Type: ChunkDone, Usage: &u} }

// ErrorChunk builds the failure terminal chunk.
func ErrorChunk(msg string) Chunk { return Chunk{Type: ChunkError, Error: msg} }

// IsTerminal reports whether the chunk ends its stream.
func (c Chunk) IsTerminal() bool { return c.Type == ChunkDone || c.Type == ChunkError }

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is one generation turn handed to an adapter. The adapter owns
// translating messages (including role=tool results) into its backend's
// wire format.
type Request struct {
	Messages    []entity.Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// Adapter is an LLM backend driver. Stream sends chunks on the returned
// channel and closes it after the single terminal chunk; the channel is
// drained safely even if the caller abandons the context.
type Adapter interface {
	Backend() string
	Model() string
	Stream(ctx context.Context, req *Request) <-chan Chunk
}

// Completion is a drained stream.
type Completion struct {
	Content   string
	ToolCalls []entity.ToolCall
	Usage     Usage
}

// Complete drains a stream into a single result. An error chunk becomes
// a returned error.
func Complete(ctx context.Context, a Adapter, req *Request) (*Completion, error) {
	var out Completion
	for chunk := range a.Stream(ctx, req) {
		switch chunk.Type {
		case ChunkText:
			out.Content += chunk.Text
		case ChunkToolCall:
			out.ToolCalls = append(out.ToolCalls, *chunk.ToolCall)
		case ChunkDone:
			if chunk.Usage != nil {
				out.Usage = *chunk.Usage
			}
		case ChunkError:
			return nil, errors.New(errors.CodeLLM, chunk.Error)
		}
	}
	return &out, nil
}

// Config holds what a factory needs to construct an adapter.
type Config struct {
	Model   string
	BaseURL string
	APIKey  string
	Headers map[string]string // extra HTTP headers, e.g. attribution
}

// --- Adapter factory registry ---
// Backends register themselves via init() in their own package.
// Adding a backend = implement Adapter + RegisterFactory("name", New).

// Factory creates an Adapter from config.
type Factory func(cfg Config, logger *zap.Logger) (Adapter, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory registers an adapter factory under a backend name.
func RegisterFactory(backend string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[backend] = factory
}

// NewAdapter constructs an adapter using the registered factory.
func NewAdapter(backend string, cfg Config, logger *zap.Logger) (Adapter, error) {
	factoryMu.RLock()
	factory, ok := factories[backend]
	factoryMu.RUnlock()

	if !ok {
		factoryMu.RLock()
		available := make([]string, 0, len(factories))
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, errors.NewConfigError(fmt.Sprintf("unknown LLM backend %q (available: %v)", backend, available))
	}

	return factory(cfg, logger)
}

// RegisteredBackends lists the backend names with a registered factory.
func RegisteredBackends() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for k := range factories {
		names = append(names, k)
	}
	return names
}

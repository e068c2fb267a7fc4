// Package application composes the domain and infrastructure layers
// into the message-processing flow: one user utterance in, one streamed
// assistant turn out.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
	"github.com/aria-ai/aria/pkg/safego"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

// extractionTimeout bounds one background extraction run. It is
// detached from the request context so stream close does not cancel it.
const extractionTimeout = 2 * time.Minute

// AdapterSource yields a ready adapter for a backend/model pair, or an
// error when the backend is unconfigured.
type AdapterSource interface {
	Adapter(backend, model string) (llm.Adapter, error)
}

// ContextBuilder assembles the ordered message list for one turn.
type ContextBuilder interface {
	Build(ctx context.Context, conversationID, userMessage string, agent *entity.Agent) ([]entity.Message, error)
}

// ToolRouter is the slice of the tool registry the orchestrator uses.
type ToolRouter interface {
	Definitions(enabled []string) []domaintool.Definition
	Execute(ctx context.Context, name string, args map[string]any, timeout time.Duration) *domaintool.Result
}

// Orchestrator runs the per-message flow. It holds no per-request
// state; concurrent invocations synchronize only through the store.
type Orchestrator struct {
	agents        repository.AgentRepository
	conversations repository.ConversationRepository
	builder       ContextBuilder
	adapters      AdapterSource
	tools         ToolRouter
	extractor     *Extractor
	logger        *zap.Logger
}

// NewOrchestrator wires the collaborators. tools and extractor may be
// nil; the corresponding steps are skipped.
func NewOrchestrator(
	agents repository.AgentRepository,
	conversations repository.ConversationRepository,
	builder ContextBuilder,
	adapters AdapterSource,
	tools ToolRouter,
	extractor *Extractor,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		agents:        agents,
		conversations: conversations,
		builder:       builder,
		adapters:      adapters,
		tools:         tools,
		extractor:     extractor,
		logger:        logger,
	}
}

// ProcessMessage streams the assistant turn for one user message. The
// returned channel carries text and tool_call chunks as they arrive,
// tool status markers after execution, and exactly one terminal chunk.
func (o *Orchestrator) ProcessMessage(ctx context.Context, conversationID, userText string) <-chan llm.Chunk {
	out := make(chan llm.Chunk)
	safego.Go(o.logger, "process-message", func() {
		defer close(out)
		o.run(ctx, out, conversationID, userText)
	})
	return out
}

func (o *Orchestrator) run(ctx context.Context, out chan<- llm.Chunk, conversationID, userText string) {
	conv, err := o.conversations.FindByID(ctx, conversationID)
	if err != nil {
		llm.Emit(ctx, out, llm.ErrorChunk("Conversation not found"))
		return
	}

	agent, err := o.agents.FindByID(ctx, conv.AgentID)
	if err != nil {
		llm.Emit(ctx, out, llm.ErrorChunk("Agent not found"))
		return
	}

	messages, err := o.builder.Build(ctx, conversationID, userText, agent)
	if err != nil {
		llm.Emit(ctx, out, llm.ErrorChunk("Failed to build context: "+err.Error()))
		return
	}

	// The user turn is persisted before the LLM call so it survives any
	// downstream failure.
	userMsg := entity.NewMessage(entity.RoleUser, userText)
	if err := o.conversations.AppendMessage(ctx, conversationID, userMsg, 0, 0); err != nil {
		llm.Emit(ctx, out, llm.ErrorChunk("Failed to save message: "+err.Error()))
		return
	}

	adapter, triple, fellBack, err := resolveAdapter(o.adapters, agent)
	if err != nil {
		o.logger.Error("No usable LLM backend",
			zap.String("agent_id", agent.ID),
			zap.Error(err),
		)
		llm.Emit(ctx, out, llm.ErrorChunk("No usable LLM backend: "+err.Error()))
		return
	}
	if fellBack {
		notice := fmt.Sprintf("[Falling back to %s/%s]\n", triple.Backend, triple.Model)
		if !llm.Emit(ctx, out, llm.TextChunk(notice)) {
			return
		}
	}

	req := &llm.Request{
		Messages:    messages,
		Temperature: triple.Temperature,
		MaxTokens:   triple.MaxTokens,
	}
	if agent.Capabilities.ToolsEnabled && o.tools != nil {
		for _, def := range o.tools.Definitions(agent.EnabledTools) {
			req.Tools = append(req.Tools, llm.ToolDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.JSONSchema(),
			})
		}
	}

	var (
		content   string
		toolCalls []entity.ToolCall
		usage     llm.Usage
	)
	for chunk := range adapter.Stream(ctx, req) {
		switch chunk.Type {
		case llm.ChunkText:
			content += chunk.Text
			if !llm.Emit(ctx, out, chunk) {
				return
			}
		case llm.ChunkToolCall:
			toolCalls = append(toolCalls, *chunk.ToolCall)
			if !llm.Emit(ctx, out, chunk) {
				return
			}
		case llm.ChunkDone:
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		case llm.ChunkError:
			// The user turn stays persisted; nothing assistant-side to save.
			llm.Emit(ctx, out, chunk)
			return
		}
	}

	assistantMsg := entity.NewMessage(entity.RoleAssistant, content)
	assistantMsg.Model = triple.Model
	assistantMsg.ToolCalls = toolCalls
	assistantMsg.InputTokens = usage.InputTokens
	assistantMsg.OutputTokens = usage.OutputTokens
	tokenDelta := usage.InputTokens + usage.OutputTokens
	if err := o.conversations.AppendMessage(ctx, conversationID, assistantMsg, tokenDelta, len(toolCalls)); err != nil {
		llm.Emit(ctx, out, llm.ErrorChunk("Failed to save response: "+err.Error()))
		return
	}

	if len(toolCalls) > 0 && o.tools != nil {
		if !o.runToolCalls(ctx, out, conversationID, toolCalls) {
			return
		}
	}

	if agent.Memory.AutoExtract && o.extractor != nil {
		o.scheduleExtraction(conversationID, agent)
	}

	// Terminal chunk is held until after tool markers so nothing
	// follows it on the stream.
	llm.Emit(ctx, out, llm.DoneChunk(usage))
}

// runToolCalls executes each captured call through the router, persists
// a role=tool message per result, and emits a status marker. Returns
// false if the client went away.
func (o *Orchestrator) runToolCalls(ctx context.Context, out chan<- llm.Chunk, conversationID string, calls []entity.ToolCall) bool {
	for _, call := range calls {
		result := o.tools.Execute(ctx, call.Name, call.Arguments, 0)

		toolMsg := entity.NewMessage(entity.RoleTool, stringifyToolOutput(result))
		toolMsg.ToolCallID = call.ID
		toolMsg.ToolName = call.Name
		if err := o.conversations.AppendMessage(ctx, conversationID, toolMsg, 0, 0); err != nil {
			o.logger.Error("Failed to save tool result",
				zap.String("conversation_id", conversationID),
				zap.String("tool", call.Name),
				zap.Error(err),
			)
		}

		marker := fmt.Sprintf("\n[Tool %s: %s]", call.Name, result.Status)
		if !llm.Emit(ctx, out, llm.TextChunk(marker)) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) scheduleExtraction(conversationID string, agent *entity.Agent) {
	safego.Go(o.logger, "memory-extraction", func() {
		ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
		defer cancel()

		count, err := o.extractor.ExtractFromConversation(ctx, conversationID, agent)
		if err != nil {
			o.logger.Warn("Background extraction failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			return
		}
		if count > 0 {
			o.logger.Info("Extracted memories",
				zap.String("conversation_id", conversationID),
				zap.Int("count", count),
			)
		}
	})
}

// resolveAdapter tries the agent's primary triple, then walks the
// fallback chain picking the first on_error entry whose adapter can be
// constructed. The bool reports whether a fallback was used.
func resolveAdapter(source AdapterSource, agent *entity.Agent) (llm.Adapter, entity.LLMTriple, bool, error) {
	primary := agent.LLM
	adapter, primaryErr := source.Adapter(primary.Backend, primary.Model)
	if primaryErr == nil {
		return adapter, primary, false, nil
	}

	for _, fb := range agent.Fallbacks {
		if !fb.Conditions.OnError {
			continue
		}
		if adapter, err := source.Adapter(fb.Backend, fb.Model); err == nil {
			return adapter, fb.LLMTriple, true, nil
		}
	}
	return nil, entity.LLMTriple{}, false, primaryErr
}

// stringifyToolOutput renders a tool result as message content: the
// error for failures, the output (JSON-encoded unless already a string)
// for successes.
func stringifyToolOutput(result *domaintool.Result) string {
	if result.Status == domaintool.StatusError {
		return result.Error
	}
	switch v := result.Output.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

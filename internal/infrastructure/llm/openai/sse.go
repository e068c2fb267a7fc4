package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

// ToolCallAccumulator accumulates tool call fragments across SSE chunks.
type ToolCallAccumulator struct {
	ID          string
	Name        string
	ArgsBuilder strings.Builder
}

// ParseSSEStream reads a text/event-stream body and emits chunks,
// finishing with exactly one terminal chunk.
//
// Three-tier termination protection:
//
//	L1: Break on finish_reason (don't wait for [DONE] — some APIs never send it)
//	L2: 60s read idle timeout (detect stale connections)
//	L3: Caller's context (watchdog closes the body)
func ParseSSEStream(ctx context.Context, reader io.Reader, ch chan<- llm.Chunk, logger *zap.Logger) {
	tReader := &llm.TimedReader{R: reader, Timeout: llm.DefaultIdleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

	var contentBuilder strings.Builder
	toolCallMap := make(map[int]*ToolCallAccumulator)
	var usage llm.Usage
	var finishReason string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			llm.Emit(ctx, ch, llm.ErrorChunk(ctx.Err().Error()))
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk StreamChunkData
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Debug("Skip unparseable SSE chunk", zap.Error(err))
			continue
		}

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := choice.Delta

		if choice.FinishReason != nil {
			finishReason = *choice.FinishReason
		}

		if delta.Content != "" {
			contentBuilder.WriteString(delta.Content)
			if !llm.Emit(ctx, ch, llm.TextChunk(delta.Content)) {
				return
			}
		}

		// Tool call fragments: keyed by explicit index, parsed once at
		// the end of the turn.
		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			if _, ok := toolCallMap[idx]; !ok {
				toolCallMap[idx] = &ToolCallAccumulator{
					ID:   tc.ID,
					Name: tc.Function.Name,
				}
			}
			acc := toolCallMap[idx]
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Name = tc.Function.Name
			}
			acc.ArgsBuilder.WriteString(tc.Function.Arguments)
		}

		// L1: finish_reason received — break immediately
		if finishReason != "" {
			logger.Debug("SSE stream: finish_reason received, breaking",
				zap.String("finish_reason", finishReason))
			break
		}
	}

	// L2: distinguish idle timeout from real scan errors
	if err := scanner.Err(); err != nil {
		if llm.IsIdleTimeout(err) {
			logger.Warn("SSE stream idle timeout, upstream stalled",
				zap.String("content_so_far", llm.TruncateForLog(contentBuilder.String(), 100)),
			)
			if contentBuilder.Len() == 0 && len(toolCallMap) == 0 {
				llm.Emit(ctx, ch, llm.ErrorChunk(fmt.Sprintf("stream stalled: no data for %v", llm.DefaultIdleTimeout)))
				return
			}
			logger.Info("Emitting partial response after idle timeout")
		} else {
			llm.Emit(ctx, ch, llm.ErrorChunk("stream scan error: "+err.Error()))
			return
		}
	}

	for i := 0; i < len(toolCallMap); i++ {
		acc, ok := toolCallMap[i]
		if !ok {
			continue
		}
		args := map[string]any{}
		if argsStr := acc.ArgsBuilder.String(); argsStr != "" {
			if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
				// Unparseable arguments degrade to an empty map; the
				// tool layer reports the missing params to the model.
				logger.Warn("Failed to parse streamed tool call args",
					zap.String("tool", acc.Name),
					zap.Error(err),
				)
				args = map[string]any{}
			}
		}
		if !llm.Emit(ctx, ch, llm.ToolCallChunk(entity.ToolCall{
			ID:        acc.ID,
			Name:      acc.Name,
			Arguments: args,
		})) {
			return
		}
	}

	// Estimate usage when the API returned none.
	if usage.OutputTokens == 0 && contentBuilder.Len() > 0 {
		usage.OutputTokens = len([]rune(contentBuilder.String()))*3/2 + 50
	}
	llm.Emit(ctx, ch, llm.DoneChunk(usage))
}

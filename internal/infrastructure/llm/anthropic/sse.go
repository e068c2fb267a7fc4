package anthropic

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

// toolCallAccumulator tracks a tool_use block being streamed.
type toolCallAccumulator struct {
	ID          string
	Name        string
	ArgsBuilder strings.Builder
}

// ParseSSEStream reads the event-based Messages SSE format and emits
// chunks, finishing with exactly one terminal chunk.
//
// Event sequence:
//   - message_start         → initial metadata + input token count
//   - content_block_start   → new content block (text, tool_use, thinking)
//   - content_block_delta   → incremental update to current block
//   - content_block_stop    → current block finished
//   - message_delta         → stop_reason + final usage
//   - message_stop          → stream complete
func ParseSSEStream(ctx context.Context, reader io.Reader, ch chan<- llm.Chunk, logger *zap.Logger) {
	tReader := &llm.TimedReader{R: reader, Timeout: llm.DefaultIdleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var contentLen int
	var usage llm.Usage
	toolCalls := make(map[int]*toolCallAccumulator) // block index → accumulator
	var blockOrder []int
	var currentEventType string

scan:
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			llm.Emit(ctx, ch, llm.ErrorChunk(ctx.Err().Error()))
			return
		default:
		}

		line := scanner.Text()

		// "event: <type>" followed by "data: <json>"
		if strings.HasPrefix(line, "event: ") {
			currentEventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEventType {
		case "message_start":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("Skip unparseable message_start", zap.Error(err))
				continue
			}
			if evt.Message != nil {
				usage.InputTokens = evt.Message.Usage.InputTokens
				if evt.Message.Usage.OutputTokens > 0 {
					usage.OutputTokens = evt.Message.Usage.OutputTokens
				}
			}

		case "content_block_start":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("Skip unparseable content_block_start", zap.Error(err))
				continue
			}
			if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
				toolCalls[evt.Index] = &toolCallAccumulator{
					ID:   evt.ContentBlock.ID,
					Name: evt.ContentBlock.Name,
				}
				blockOrder = append(blockOrder, evt.Index)
			}

		case "content_block_delta":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("Skip unparseable content_block_delta", zap.Error(err))
				continue
			}
			if evt.Delta == nil {
				continue
			}
			switch evt.Delta.Type {
			case "text_delta":
				if evt.Delta.Text != "" {
					contentLen += len(evt.Delta.Text)
					if !llm.Emit(ctx, ch, llm.TextChunk(evt.Delta.Text)) {
						return
					}
				}
			case "input_json_delta":
				if acc, ok := toolCalls[evt.Index]; ok {
					acc.ArgsBuilder.WriteString(evt.Delta.PartialJSON)
				}
			case "thinking_delta":
				// Reasoning content is not relayed.
			}

		case "message_delta":
			var evt StreamEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				logger.Debug("Skip unparseable message_delta", zap.Error(err))
				continue
			}
			if evt.Usage != nil {
				if evt.Usage.InputTokens > 0 {
					usage.InputTokens = evt.Usage.InputTokens
				}
				if evt.Usage.OutputTokens > 0 {
					usage.OutputTokens = evt.Usage.OutputTokens
				}
			}

		case "message_stop":
			break scan

		case "ping":
			// Heartbeat, ignore.

		default:
			logger.Debug("Unknown SSE event type", zap.String("type", currentEventType))
		}

		currentEventType = "" // reset after processing
	}

	if err := scanner.Err(); err != nil {
		if llm.IsIdleTimeout(err) {
			logger.Warn("SSE stream idle timeout, upstream stalled")
			if contentLen == 0 && len(toolCalls) == 0 {
				llm.Emit(ctx, ch, llm.ErrorChunk(fmt.Sprintf("stream stalled: no data for %v", llm.DefaultIdleTimeout)))
				return
			}
			logger.Info("Emitting partial response after idle timeout")
		} else {
			llm.Emit(ctx, ch, llm.ErrorChunk("stream scan error: "+err.Error()))
			return
		}
	}

	// Assemble tool calls in block order.
	for _, idx := range blockOrder {
		acc := toolCalls[idx]
		args := map[string]any{}
		if argsStr := acc.ArgsBuilder.String(); argsStr != "" {
			if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
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

	if usage.OutputTokens == 0 && contentLen > 0 {
		usage.OutputTokens = contentLen*3/8 + 50
	}
	llm.Emit(ctx, ch, llm.DoneChunk(usage))
}

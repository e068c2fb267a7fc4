package anthropic

// Messages API wire types.
//
// Differences from the chat-completions dialect:
// - Messages carry content blocks ([]ContentBlock), not flat strings
// - Tool calls are content blocks with type "tool_use"
// - Tool results go back as role "user" with type "tool_result"
// - The system prompt is a separate top-level field, not a message

// Request is the Messages API request format.
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a polymorphic content element.
type ContentBlock struct {
	Type string `json:"type"` // "text" | "tool_use" | "tool_result" | "thinking"

	// For type "text"
	Text string `json:"text,omitempty"`

	// For type "tool_use" (assistant requesting a tool call)
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// For type "tool_result" (user providing tool output)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// For type "thinking"
	Thinking string `json:"thinking,omitempty"`
}

// Tool is a tool definition.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Response is the non-streaming Messages API response.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"` // "end_turn" | "tool_use" | "max_tokens"
	Usage      Usage          `json:"usage"`
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- Streaming types ---
// Event-based SSE with typed events.

// StreamEvent is one typed SSE event.
type StreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`

	// For content_block_start
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// For content_block_delta and message_delta
	Delta *DeltaBlock `json:"delta,omitempty"`

	// For message_delta
	Usage *Usage `json:"usage,omitempty"`

	// For message_start
	Message *Response `json:"message,omitempty"`
}

// DeltaBlock is incremental content in a stream.
type DeltaBlock struct {
	Type        string `json:"type"` // "text_delta" | "input_json_delta" | "thinking_delta"
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`

	// For message_delta events
	StopReason string `json:"stop_reason,omitempty"`
}

// ConvertSchema ensures a tool parameter schema is a well-formed JSON
// Schema object.
func ConvertSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	result := make(map[string]any)
	for k, v := range schema {
		result[k] = v
	}
	if _, ok := result["type"]; !ok {
		result["type"] = "object"
	}
	return result
}

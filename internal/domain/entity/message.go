package entity

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation emitted by the assistant.
type ToolCall struct {
	ID        string         `bson:"id" json:"id"`
	Name      string         `bson:"name" json:"name"`
	Arguments map[string]any `bson:"arguments" json:"arguments"`
}

// Message is one turn inside a conversation document. Messages are
// append-only; the only mutation permitted after append is flipping
// MemoryProcessed to true.
type Message struct {
	ID              string     `bson:"id" json:"id"`
	Role            Role       `bson:"role" json:"role"`
	Content         string     `bson:"content" json:"content"`
	ToolCalls       []ToolCall `bson:"tool_calls,omitempty" json:"tool_calls,omitempty"`
	ToolCallID      string     `bson:"tool_call_id,omitempty" json:"tool_call_id,omitempty"`
	ToolName        string     `bson:"tool_name,omitempty" json:"tool_name,omitempty"`
	Model           string     `bson:"model,omitempty" json:"model,omitempty"`
	InputTokens     int        `bson:"input_tokens,omitempty" json:"input_tokens,omitempty"`
	OutputTokens    int        `bson:"output_tokens,omitempty" json:"output_tokens,omitempty"`
	CreatedAt       time.Time  `bson:"created_at" json:"created_at"`
	MemoryProcessed bool       `bson:"memory_processed" json:"memory_processed"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

package entity

import "time"

// ConversationStatus is the conversation lifecycle state.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// ConversationStats are denormalized counters kept in sync with the
// message array by atomic $inc updates.
type ConversationStats struct {
	MessageCount int `bson:"message_count" json:"message_count"`
	TotalTokens  int `bson:"total_tokens" json:"total_tokens"`
	ToolCalls    int `bson:"tool_calls" json:"tool_calls"`
}

// LLMSnapshot records the LLM selection active when the conversation was
// created.
type LLMSnapshot struct {
	Backend     string  `bson:"backend" json:"backend"`
	Model       string  `bson:"model" json:"model"`
	Temperature float64 `bson:"temperature" json:"temperature"`
}

// Conversation owns an ordered append-only sequence of messages.
// Invariant: UpdatedAt >= max(message.CreatedAt).
type Conversation struct {
	ID        string             `bson:"_id,omitempty" json:"id"`
	AgentID   string             `bson:"agent_id" json:"agent_id"`
	Title     string             `bson:"title" json:"title"`
	Summary   string             `bson:"summary,omitempty" json:"summary,omitempty"`
	Status    ConversationStatus `bson:"status" json:"status"`
	LLM       LLMSnapshot        `bson:"llm_config" json:"llm_config"`
	Messages  []Message          `bson:"messages" json:"messages"`
	Tags      []string           `bson:"tags" json:"tags"`
	Pinned    bool               `bson:"pinned" json:"pinned"`
	Stats     ConversationStats  `bson:"stats" json:"stats"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

package entity

import "time"

// ContentType classifies a long-term memory.
type ContentType string

const (
	ContentFact       ContentType = "fact"
	ContentPreference ContentType = "preference"
	ContentEvent      ContentType = "event"
	ContentSkill      ContentType = "skill"
	ContentDocument   ContentType = "document"
)

// ValidContentType reports whether ct is one of the known content types.
func ValidContentType(ct ContentType) bool {
	switch ct {
	case ContentFact, ContentPreference, ContentEvent, ContentSkill, ContentDocument:
		return true
	}
	return false
}

// MemoryStatus is the memory lifecycle state. Memories are only ever
// soft-deleted.
type MemoryStatus string

const (
	MemoryActive  MemoryStatus = "active"
	MemoryDeleted MemoryStatus = "deleted"
)

// MemorySource describes where a memory came from: a manual API write or
// extraction from a conversation. The referenced messages may disappear;
// there is no foreign-key enforcement.
type MemorySource struct {
	Type           string    `bson:"type" json:"type"` // manual | conversation
	ConversationID string    `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	MessageIDs     []string  `bson:"message_ids,omitempty" json:"message_ids,omitempty"`
	ExtractedAt    time.Time `bson:"extracted_at,omitempty" json:"extracted_at,omitempty"`
	CreatedAt      time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// Memory is a durable, searchable piece of knowledge. The embedding is
// persisted separately as packed little-endian float32 binary; content
// rewrites must rewrite the embedding in the same update.
type Memory struct {
	ID             string       `bson:"_id,omitempty" json:"id"`
	Content        string       `bson:"content" json:"content"`
	ContentType    ContentType  `bson:"content_type" json:"content_type"`
	Categories     []string     `bson:"categories" json:"categories"`
	Importance     float64      `bson:"importance" json:"importance"`
	Confidence     *float64     `bson:"confidence" json:"confidence"`
	Verified       bool         `bson:"verified" json:"verified"`
	Status         MemoryStatus `bson:"status" json:"status"`
	EmbeddingModel string       `bson:"embedding_model,omitempty" json:"-"`
	Source         MemorySource `bson:"source" json:"source"`
	AccessCount    int          `bson:"access_count" json:"access_count"`
	CreatedAt      time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `bson:"updated_at" json:"updated_at"`
	LastAccessedAt time.Time    `bson:"last_accessed_at" json:"last_accessed_at"`

	// Score is filled during search; never persisted.
	Score float64 `bson:"-" json:"score,omitempty"`
}

package repository

import (
	"context"

	"github.com/aria-ai/aria/internal/domain/entity"
)

// ConversationRepository is the conversations persistence port. Message
// appends are atomic document updates ($push + stats increments), never a
// load-modify-write of the whole document.
type ConversationRepository interface {
	// FindByID loads a conversation with all messages.
	FindByID(ctx context.Context, id string) (*entity.Conversation, error)

	// FindAll lists conversations by status without their message arrays,
	// most recently updated first.
	FindAll(ctx context.Context, status entity.ConversationStatus, limit, skip int) ([]entity.Conversation, error)

	// Create inserts a new conversation.
	Create(ctx context.Context, conv *entity.Conversation) error

	// UpdateMeta patches conversation metadata (title, status, tags, ...).
	UpdateMeta(ctx context.Context, id string, patch map[string]any) (*entity.Conversation, error)

	// Delete removes a conversation document.
	Delete(ctx context.Context, id string) error

	// AppendMessage atomically pushes a message, bumps updated_at, and
	// increments stats counters (message_count always; total_tokens and
	// tool_calls by the given deltas).
	AppendMessage(ctx context.Context, id string, msg entity.Message, tokenDelta, toolCallDelta int) error

	// RecentMessages returns up to max most-recent messages in
	// chronological order.
	RecentMessages(ctx context.Context, id string, max int) ([]entity.Message, error)

	// UnprocessedMessages returns user/assistant messages not yet seen by
	// the memory extractor, oldest first.
	UnprocessedMessages(ctx context.Context, id string) ([]entity.Message, error)

	// MarkMessagesProcessed sets memory_processed=true on every message
	// whose id is in ids.
	MarkMessagesProcessed(ctx context.Context, id string, ids []string) error
}

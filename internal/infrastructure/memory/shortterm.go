package memory

import (
	"context"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
)

// charsPerToken is the trim heuristic: 1 token ≈ 4 characters.
const charsPerToken = 4

// ShortTerm retrieves the bounded recent-message window of a conversation.
// No embeddings involved.
type ShortTerm struct {
	conversations repository.ConversationRepository
}

// NewShortTerm creates the short-term memory view.
func NewShortTerm(conversations repository.ConversationRepository) *ShortTerm {
	return &ShortTerm{conversations: conversations}
}

// Recent returns up to max most-recent messages in chronological order.
func (s *ShortTerm) Recent(ctx context.Context, conversationID string, max int) ([]entity.Message, error) {
	return s.conversations.RecentMessages(ctx, conversationID, max)
}

// TrimToTokens keeps the newest messages whose estimated token total fits
// the budget. Order is preserved.
func TrimToTokens(messages []entity.Message, maxTokens int) []entity.Message {
	if maxTokens <= 0 {
		return messages
	}
	budget := maxTokens * charsPerToken

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		total += len(messages[i].Content)
		if total > budget {
			break
		}
		start = i
	}
	return messages[start:]
}

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

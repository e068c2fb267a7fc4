// Package contextbuild assembles the ordered message list handed to the
// LLM: system prompt, retrieved long-term memories, recent turns, and the
// new user message.
package contextbuild

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
)

// MemorySearcher is the slice of the long-term store the builder needs.
type MemorySearcher interface {
	Search(ctx context.Context, query string, limit int, filters map[string]any) ([]entity.Memory, error)
	IncrementAccess(ctx context.Context, id string) error
}

// RecentLoader is the slice of the short-term view the builder needs.
type RecentLoader interface {
	Recent(ctx context.Context, conversationID string, max int) ([]entity.Message, error)
}

// Builder composes LLM context on every turn. Retrieval is never cached.
type Builder struct {
	longTerm  MemorySearcher
	shortTerm RecentLoader
	logger    *zap.Logger
}

// NewBuilder creates a context builder.
func NewBuilder(longTerm MemorySearcher, shortTerm RecentLoader, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{longTerm: longTerm, shortTerm: shortTerm, logger: logger}
}

// Build returns the ordered messages for one LLM turn: system (with memory
// block when retrieval matched), recent turns with original roles, then the
// new user message last.
func (b *Builder) Build(ctx context.Context, conversationID, userMessage string, agent *entity.Agent) ([]entity.Message, error) {
	systemPrompt := agent.SystemPrompt

	if agent.Capabilities.MemoryEnabled {
		block, err := b.memoryBlock(ctx, userMessage, agent.Memory.LongTermResults)
		if err != nil {
			// Retrieval failure degrades to no memory block; the turn
			// itself must not fail.
			b.logger.Warn("Memory retrieval failed, building context without memories",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		} else {
			systemPrompt += block
		}
	}

	messages := []entity.Message{{Role: entity.RoleSystem, Content: systemPrompt}}

	recent, err := b.shortTerm.Recent(ctx, conversationID, agent.Memory.ShortTermMessages)
	if err != nil {
		return nil, err
	}
	messages = append(messages, recent...)

	messages = append(messages, entity.Message{Role: entity.RoleUser, Content: userMessage})
	return messages, nil
}

// memoryBlock searches long-term memory and formats the result as a system
// prompt appendix. An empty result yields an empty block.
func (b *Builder) memoryBlock(ctx context.Context, query string, limit int) (string, error) {
	memories, err := b.longTerm.Search(ctx, query, limit, nil)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "", nil
	}

	var lines []string
	for _, m := range memories {
		if err := b.longTerm.IncrementAccess(ctx, m.ID); err != nil {
			b.logger.Debug("Memory access tracking failed",
				zap.String("memory_id", m.ID),
				zap.Error(err),
			)
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", m.ContentType, m.Content))
	}

	return fmt.Sprintf("\n\n## Relevant Long-Term Memories\n\n%s\n\nUse these memories to provide personalized and contextual responses.\n", strings.Join(lines, "\n")), nil
}

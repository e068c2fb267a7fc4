package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

const (
	// DefaultExtractionBatchSize is how many messages go into one
	// extraction prompt.
	DefaultExtractionBatchSize = 10

	extractionTemperature = 0.3
	extractionMaxTokens   = 2048

	// extractedConfidence is assigned to auto-extracted memories.
	extractedConfidence = 0.8
)

const extractionPrompt = `You are a memory extraction assistant. Your job is to analyze conversation messages and extract important facts, preferences, and information that should be remembered long-term.

Review the following conversation messages and extract any memories worth saving. Focus on:
- User preferences and likes/dislikes
- Important facts about the user
- Significant decisions or plans
- Skills or expertise mentioned
- Important context that would be useful in future conversations

For each memory, provide:
1. content: The memory text (concise but complete)
2. content_type: One of: fact, preference, event, skill, document
3. categories: List of relevant categories/tags
4. importance: Score from 0.0 to 1.0

Return your response as a JSON array of memory objects. If no significant memories are found, return an empty array.

Example output:
[
  {
    "content": "User prefers Python over JavaScript for backend development",
    "content_type": "preference",
    "categories": ["coding", "preferences"],
    "importance": 0.7
  },
  {
    "content": "User is working on an AI agent platform called ARIA",
    "content_type": "fact",
    "categories": ["projects", "work"],
    "importance": 0.9
  }
]

Conversation messages:
%s

Extract memories (return JSON array only):`

// MemoryWriter is the slice of the long-term store the extractor needs.
type MemoryWriter interface {
	Create(ctx context.Context, content string, contentType entity.ContentType, categories []string, importance float64, confidence *float64, source entity.MemorySource) (string, error)
}

// Extractor turns unprocessed conversation messages into long-term
// memories via the agent's LLM. Runs as a background task after turns.
type Extractor struct {
	conversations repository.ConversationRepository
	memories      MemoryWriter
	adapters      AdapterSource
	batchSize     int
	logger        *zap.Logger
}

// NewExtractor creates a memory extractor.
func NewExtractor(
	conversations repository.ConversationRepository,
	memories MemoryWriter,
	adapters AdapterSource,
	logger *zap.Logger,
) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		conversations: conversations,
		memories:      memories,
		adapters:      adapters,
		batchSize:     DefaultExtractionBatchSize,
		logger:        logger,
	}
}

// ExtractedMemory is one object in the model's JSON array reply.
type ExtractedMemory struct {
	Content     string   `json:"content"`
	ContentType string   `json:"content_type"`
	Categories  []string `json:"categories"`
	Importance  float64  `json:"importance"`
}

// ExtractFromConversation scans the conversation for unprocessed
// messages and extracts memories batch by batch. A failed batch is
// skipped without marking, so it is retried on the next invocation.
func (e *Extractor) ExtractFromConversation(ctx context.Context, conversationID string, agent *entity.Agent) (int, error) {
	unprocessed, err := e.conversations.UnprocessedMessages(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if len(unprocessed) == 0 {
		return 0, nil
	}

	adapter, _, _, err := resolveAdapter(e.adapters, agent)
	if err != nil {
		return 0, err
	}

	total := 0
	for i := 0; i < len(unprocessed); i += e.batchSize {
		end := i + e.batchSize
		if end > len(unprocessed) {
			end = len(unprocessed)
		}
		total += e.extractBatch(ctx, conversationID, unprocessed[i:end], adapter)
	}
	return total, nil
}

// ExtractFromText extracts memories from arbitrary text without
// persisting anything; callers decide what to keep.
func (e *Extractor) ExtractFromText(ctx context.Context, text string, agent *entity.Agent) ([]ExtractedMemory, error) {
	adapter, _, _, err := resolveAdapter(e.adapters, agent)
	if err != nil {
		return nil, err
	}
	return e.requestMemories(ctx, adapter, "USER: "+text)
}

func (e *Extractor) extractBatch(ctx context.Context, conversationID string, batch []entity.Message, adapter llm.Adapter) int {
	var lines []string
	for _, msg := range batch {
		lines = append(lines, strings.ToUpper(string(msg.Role))+": "+msg.Content)
	}

	memories, err := e.requestMemories(ctx, adapter, strings.Join(lines, "\n\n"))
	if err != nil {
		// Leave the batch unmarked; it will be retried next time.
		e.logger.Warn("Extraction batch failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return 0
	}

	messageIDs := make([]string, len(batch))
	for i, msg := range batch {
		messageIDs[i] = msg.ID
	}
	source := entity.MemorySource{
		Type:           "conversation",
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
		ExtractedAt:    time.Now().UTC(),
	}

	count := 0
	confidence := extractedConfidence
	for _, m := range memories {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		contentType := entity.ContentType(m.ContentType)
		if !entity.ValidContentType(contentType) {
			contentType = entity.ContentFact
		}
		importance := m.Importance
		if importance <= 0 {
			importance = 0.5
		}
		if _, err := e.memories.Create(ctx, m.Content, contentType, m.Categories, importance, &confidence, source); err != nil {
			e.logger.Warn("Failed to create memory", zap.Error(err))
			continue
		}
		count++
	}

	if err := e.conversations.MarkMessagesProcessed(ctx, conversationID, messageIDs); err != nil {
		e.logger.Warn("Failed to mark messages processed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	return count
}

// requestMemories runs one extraction prompt and parses the JSON array.
func (e *Extractor) requestMemories(ctx context.Context, adapter llm.Adapter, messagesText string) ([]ExtractedMemory, error) {
	req := &llm.Request{
		Messages: []entity.Message{
			{Role: entity.RoleUser, Content: fmt.Sprintf(extractionPrompt, messagesText)},
		},
		Temperature: extractionTemperature,
		MaxTokens:   extractionMaxTokens,
	}

	completion, err := llm.Complete(ctx, adapter, req)
	if err != nil {
		return nil, err
	}

	var memories []ExtractedMemory
	if err := json.Unmarshal([]byte(strings.TrimSpace(completion.Content)), &memories); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return memories, nil
}

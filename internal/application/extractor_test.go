package application

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

type fakeMemoryWriter struct {
	created []entity.Memory
	fail    bool
}

func (w *fakeMemoryWriter) Create(ctx context.Context, content string, contentType entity.ContentType, categories []string, importance float64, confidence *float64, source entity.MemorySource) (string, error) {
	if w.fail {
		return "", context.DeadlineExceeded
	}
	w.created = append(w.created, entity.Memory{
		Content:     content,
		ContentType: contentType,
		Categories:  categories,
		Importance:  importance,
		Confidence:  confidence,
		Source:      source,
	})
	return "mem-1", nil
}

func extractionFixture(reply string, unprocessed []entity.Message) (*Extractor, *fakeConversationRepo, *fakeMemoryWriter, *scriptedAdapter) {
	adapter := &scriptedAdapter{backend: "fake", model: "m1", chunks: []llm.Chunk{
		llm.TextChunk(reply),
		llm.DoneChunk(llm.Usage{}),
	}}
	convs := &fakeConversationRepo{conv: testConversation(), unprocessed: unprocessed}
	writer := &fakeMemoryWriter{}
	e := NewExtractor(convs, writer,
		&fakeAdapterSource{adapters: map[string]llm.Adapter{"fake/m1": adapter}},
		zap.NewNop(),
	)
	return e, convs, writer, adapter
}

func TestExtractor_CreatesMemoriesAndMarks(t *testing.T) {
	reply := `[
		{"content": "User prefers Go", "content_type": "preference", "categories": ["coding"], "importance": 0.7},
		{"content": "User lives in Oslo", "content_type": "fact", "categories": ["personal"], "importance": 0.6}
	]`
	unprocessed := []entity.Message{
		{ID: "m1", Role: entity.RoleUser, Content: "I prefer Go. I live in Oslo."},
		{ID: "m2", Role: entity.RoleAssistant, Content: "Noted!"},
	}
	e, convs, writer, adapter := extractionFixture(reply, unprocessed)

	count, err := e.ExtractFromConversation(context.Background(), "conv-1", testAgent())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if count != 2 || len(writer.created) != 2 {
		t.Fatalf("count = %d, created = %+v", count, writer.created)
	}

	first := writer.created[0]
	if first.ContentType != entity.ContentPreference || *first.Confidence != 0.8 {
		t.Errorf("memory = %+v", first)
	}
	if first.Source.Type != "conversation" || first.Source.ConversationID != "conv-1" {
		t.Errorf("source = %+v", first.Source)
	}
	if len(first.Source.MessageIDs) != 2 {
		t.Errorf("message ids = %v", first.Source.MessageIDs)
	}

	if len(convs.markedIDs) != 2 {
		t.Errorf("marked = %v", convs.markedIDs)
	}

	prompt := adapter.lastReq.Messages[0].Content
	if !strings.Contains(prompt, "USER: I prefer Go. I live in Oslo.") {
		t.Errorf("prompt missing messages block:\n%s", prompt)
	}
	if adapter.lastReq.Temperature != 0.3 || adapter.lastReq.MaxTokens != 2048 {
		t.Errorf("request params = %+v", adapter.lastReq)
	}
}

func TestExtractor_ParseFailureLeavesBatchUnmarked(t *testing.T) {
	unprocessed := []entity.Message{{ID: "m1", Role: entity.RoleUser, Content: "hi"}}
	e, convs, writer, _ := extractionFixture("Sorry, I cannot do that.", unprocessed)

	count, err := e.ExtractFromConversation(context.Background(), "conv-1", testAgent())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if count != 0 || len(writer.created) != 0 {
		t.Errorf("count = %d, created = %+v", count, writer.created)
	}
	if len(convs.markedIDs) != 0 {
		t.Errorf("batch was marked despite parse failure: %v", convs.markedIDs)
	}
}

func TestExtractor_DefaultsInvalidFields(t *testing.T) {
	reply := `[{"content": "Something", "content_type": "weird", "importance": 0}]`
	unprocessed := []entity.Message{{ID: "m1", Role: entity.RoleUser, Content: "hi"}}
	e, _, writer, _ := extractionFixture(reply, unprocessed)

	if _, err := e.ExtractFromConversation(context.Background(), "conv-1", testAgent()); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(writer.created) != 1 {
		t.Fatalf("created = %+v", writer.created)
	}
	m := writer.created[0]
	if m.ContentType != entity.ContentFact || m.Importance != 0.5 {
		t.Errorf("defaults not applied: %+v", m)
	}
}

func TestExtractor_NoUnprocessedIsNoop(t *testing.T) {
	e, convs, writer, _ := extractionFixture("[]", nil)

	count, err := e.ExtractFromConversation(context.Background(), "conv-1", testAgent())
	if err != nil || count != 0 {
		t.Fatalf("count = %d, err = %v", count, err)
	}
	if len(writer.created) != 0 || len(convs.markedIDs) != 0 {
		t.Errorf("unexpected writes: %+v %v", writer.created, convs.markedIDs)
	}
}

func TestExtractor_EmptyContentSkipped(t *testing.T) {
	reply := `[{"content": "  ", "content_type": "fact"}, {"content": "Keeps this", "content_type": "fact", "importance": 0.4}]`
	unprocessed := []entity.Message{{ID: "m1", Role: entity.RoleUser, Content: "hi"}}
	e, _, writer, _ := extractionFixture(reply, unprocessed)

	count, err := e.ExtractFromConversation(context.Background(), "conv-1", testAgent())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if count != 1 || len(writer.created) != 1 || writer.created[0].Content != "Keeps this" {
		t.Errorf("count = %d, created = %+v", count, writer.created)
	}
}

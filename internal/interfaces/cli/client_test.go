package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

func TestClient_StreamMessageParsesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/conversations/conv-1/messages" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: text\ndata: {\"type\":\"text\",\"text\":\"Hello\"}\n\n")
		fmt.Fprint(w, "event: done\ndata: {\"type\":\"done\",\"usage\":{\"input_tokens\":2,\"output_tokens\":1}}\n\n")
	}))
	defer srv.Close()

	var chunks []llm.Chunk
	err := NewClient(srv.URL).StreamMessage(context.Background(), "conv-1", "hi", func(c llm.Chunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %+v", chunks)
	}
	if chunks[0].Type != llm.ChunkText || chunks[0].Text != "Hello" {
		t.Errorf("first = %+v", chunks[0])
	}
	if chunks[1].Type != llm.ChunkDone || chunks[1].Usage.OutputTokens != 1 {
		t.Errorf("second = %+v", chunks[1])
	}
}

func TestClient_StreamMessageErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "conversation not found: conv-9"}`)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).StreamMessage(context.Background(), "conv-9", "hi", func(llm.Chunk) {})
	if err == nil || err.Error() != "send message: conversation not found: conv-9" {
		t.Errorf("err = %v", err)
	}
}

func TestClient_CreateConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "conv-42", "title": "CLI session"}`)
	}))
	defer srv.Close()

	conv, err := NewClient(srv.URL).CreateConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID != "conv-42" {
		t.Errorf("conv = %+v", conv)
	}
}

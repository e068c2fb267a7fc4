// Package cli is the interactive terminal client. It talks to a
// running server over the REST API and renders the streamed replies.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

// Client is a thin REST client for the server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: message streams are open-ended.
		http: &http.Client{},
	}
}

// Health checks the server is up and its database reachable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", readDetail(resp.Body))
	}
	return nil
}

// CreateConversation starts a conversation. An empty slug selects the
// default agent.
func (c *Client) CreateConversation(ctx context.Context, agentSlug string) (*entity.Conversation, error) {
	payload := map[string]any{"title": "CLI session"}
	if agentSlug != "" {
		payload["agent_slug"] = agentSlug
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/conversations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create conversation: %s", readDetail(resp.Body))
	}

	var conv entity.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// StreamMessage sends one user message and invokes onChunk for every
// SSE frame until the stream ends.
func (c *Client) StreamMessage(ctx context.Context, conversationID, content string, onChunk func(llm.Chunk)) error {
	body, _ := json.Marshal(map[string]any{"content": content, "stream": true})
	url := fmt.Sprintf("%s/api/v1/conversations/%s/messages", c.baseURL, conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send message: %s", readDetail(resp.Body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk llm.Chunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue
		}
		onChunk(chunk)
	}
	return scanner.Err()
}

// readDetail pulls the {"detail": ...} message out of an error body,
// falling back to the raw text.
func readDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(data))
}

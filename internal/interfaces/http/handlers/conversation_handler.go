package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
)

const defaultConversationTitle = "New Conversation"

// MessageProcessor runs one user turn and streams the reply.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, conversationID, userText string) <-chan llm.Chunk
}

// ConversationHandler serves conversation CRUD and the messages endpoint.
type ConversationHandler struct {
	conversations repository.ConversationRepository
	agents        repository.AgentRepository
	processor     MessageProcessor
	logger        *zap.Logger
}

// NewConversationHandler creates the conversation handler.
func NewConversationHandler(
	conversations repository.ConversationRepository,
	agents repository.AgentRepository,
	processor MessageProcessor,
	logger *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		agents:        agents,
		processor:     processor,
		logger:        logger,
	}
}

type conversationCreateRequest struct {
	AgentID   string   `json:"agent_id"`
	AgentSlug string   `json:"agent_slug"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Stream  *bool  `json:"stream"`
}

// List returns conversations without message bodies, most recently
// updated first.
// GET /api/v1/conversations?status=active&limit=50&skip=0
func (h *ConversationHandler) List(c *gin.Context) {
	status := entity.ConversationStatus(c.DefaultQuery("status", string(entity.ConversationActive)))
	limit := intQuery(c, "limit", 50)
	skip := intQuery(c, "skip", 0)

	convs, err := h.conversations.FindAll(c.Request.Context(), status, limit, skip)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

// Create starts a conversation. The agent is resolved by id, then slug,
// then the default agent; its LLM selection is snapshotted.
// POST /api/v1/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req conversationCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	agent, err := h.resolveAgent(c.Request.Context(), req.AgentID, req.AgentSlug)
	if err != nil {
		respondError(c, err)
		return
	}

	title := req.Title
	if title == "" {
		title = defaultConversationTitle
	}
	now := time.Now().UTC()
	conv := &entity.Conversation{
		AgentID: agent.ID,
		Title:   title,
		Status:  entity.ConversationActive,
		LLM: entity.LLMSnapshot{
			Backend:     agent.LLM.Backend,
			Model:       agent.LLM.Model,
			Temperature: agent.LLM.Temperature,
		},
		Messages:  []entity.Message{},
		Tags:      req.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if conv.Tags == nil {
		conv.Tags = []string{}
	}

	if err := h.conversations.Create(c.Request.Context(), conv); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// Get returns one conversation with all messages.
// GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.conversations.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Update patches conversation metadata.
// PATCH /api/v1/conversations/:id
func (h *ConversationHandler) Update(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No fields to update"})
		return
	}

	conv, err := h.conversations.UpdateMeta(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Delete removes a conversation and its messages.
// DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.conversations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendMessage runs one turn. stream=true (the default) answers with SSE
// frames, one per chunk; otherwise the stream is collected into a single
// JSON body.
// POST /api/v1/conversations/:id/messages
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	id := c.Param("id")
	if _, err := h.conversations.FindByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	chunks := h.processor.ProcessMessage(c.Request.Context(), id, req.Content)

	if req.Stream == nil || *req.Stream {
		h.streamSSE(c, chunks)
		return
	}
	h.collect(c, chunks)
}

// streamSSE writes each chunk as an SSE frame and flushes immediately so
// tokens reach the client as they are generated.
func (h *ConversationHandler) streamSSE(c *gin.Context, chunks <-chan llm.Chunk) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("Failed to encode chunk", zap.Error(err))
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", chunk.Type, data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// collect drains the stream into one response body.
func (h *ConversationHandler) collect(c *gin.Context, chunks <-chan llm.Chunk) {
	var (
		content string
		usage   llm.Usage
	)
	// Always an array in the body, even for turns without tool calls.
	toolCalls := []entity.ToolCall{}
	for chunk := range chunks {
		switch chunk.Type {
		case llm.ChunkText:
			content += chunk.Text
		case llm.ChunkToolCall:
			toolCalls = append(toolCalls, *chunk.ToolCall)
		case llm.ChunkDone:
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		case llm.ChunkError:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": chunk.Error})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"content":    content,
		"tool_calls": toolCalls,
		"usage":      usage,
	})
}

func (h *ConversationHandler) resolveAgent(ctx context.Context, agentID, agentSlug string) (*entity.Agent, error) {
	switch {
	case agentID != "":
		return h.agents.FindByID(ctx, agentID)
	case agentSlug != "":
		return h.agents.FindBySlug(ctx, agentSlug)
	default:
		return h.agents.FindDefault(ctx)
	}
}

// intQuery parses an integer query parameter, falling back to def on
// absence or garbage.
func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

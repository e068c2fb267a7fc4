package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/application"
	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/pkg/safego"
)

// manualConfidence is assigned to memories created through the API.
const manualConfidence = 1.0

// extractRequestTimeout bounds one API-scheduled extraction run.
const extractRequestTimeout = 2 * time.Minute

// MemoryStore is the slice of the long-term store the handler uses.
type MemoryStore interface {
	Create(ctx context.Context, content string, contentType entity.ContentType, categories []string, importance float64, confidence *float64, source entity.MemorySource) (string, error)
	Get(ctx context.Context, id string) (*entity.Memory, error)
	List(ctx context.Context, contentType entity.ContentType, limit, skip int) ([]entity.Memory, error)
	Update(ctx context.Context, id string, patch map[string]any) error
	SoftDelete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int, filters map[string]any) ([]entity.Memory, error)
}

// MemoryHandler serves long-term memory CRUD, hybrid search, and
// on-demand extraction.
type MemoryHandler struct {
	store         MemoryStore
	conversations repository.ConversationRepository
	agents        repository.AgentRepository
	extractor     *application.Extractor
	logger        *zap.Logger
}

// NewMemoryHandler creates the memory handler. extractor may be nil, in
// which case the extract endpoint reports the feature unavailable.
func NewMemoryHandler(
	store MemoryStore,
	conversations repository.ConversationRepository,
	agents repository.AgentRepository,
	extractor *application.Extractor,
	logger *zap.Logger,
) *MemoryHandler {
	return &MemoryHandler{
		store:         store,
		conversations: conversations,
		agents:        agents,
		extractor:     extractor,
		logger:        logger,
	}
}

type memoryCreateRequest struct {
	Content     string   `json:"content" binding:"required"`
	ContentType string   `json:"content_type"`
	Categories  []string `json:"categories"`
	Importance  *float64 `json:"importance"`
}

type memorySearchRequest struct {
	Query       string   `json:"query" binding:"required"`
	Limit       int      `json:"limit"`
	ContentType string   `json:"content_type"`
	Categories  []string `json:"categories"`
}

// List returns active memories, newest first.
// GET /api/v1/memories?content_type=fact&limit=50&skip=0
func (h *MemoryHandler) List(c *gin.Context) {
	contentType := entity.ContentType(c.Query("content_type"))
	if contentType != "" && !entity.ValidContentType(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid content_type: " + string(contentType)})
		return
	}
	limit := intQuery(c, "limit", 50)
	skip := intQuery(c, "skip", 0)

	memories, err := h.store.List(c.Request.Context(), contentType, limit, skip)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memories)
}

// Create writes a manual memory with confidence 1.0.
// POST /api/v1/memories
func (h *MemoryHandler) Create(c *gin.Context) {
	var req memoryCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	contentType := entity.ContentType(req.ContentType)
	if contentType == "" {
		contentType = entity.ContentFact
	}
	if !entity.ValidContentType(contentType) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid content_type: " + string(contentType)})
		return
	}

	importance := 0.5
	if req.Importance != nil {
		importance = *req.Importance
	}
	confidence := manualConfidence
	source := entity.MemorySource{
		Type:      "manual",
		CreatedAt: time.Now().UTC(),
	}

	id, err := h.store.Create(c.Request.Context(), req.Content, contentType, req.Categories, importance, &confidence, source)
	if err != nil {
		respondError(c, err)
		return
	}

	memory, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memory)
}

// Get returns one memory by id.
// GET /api/v1/memories/:id
func (h *MemoryHandler) Get(c *gin.Context) {
	memory, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memory)
}

// Update patches a memory. Content changes re-embed atomically in the
// store.
// PATCH /api/v1/memories/:id
func (h *MemoryHandler) Update(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No fields to update"})
		return
	}

	id := c.Param("id")
	if err := h.store.Update(c.Request.Context(), id, patch); err != nil {
		respondError(c, err)
		return
	}
	memory, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memory)
}

// Delete soft-deletes a memory.
// DELETE /api/v1/memories/:id
func (h *MemoryHandler) Delete(c *gin.Context) {
	if err := h.store.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search runs hybrid retrieval with optional content_type and category
// filters.
// POST /api/v1/memories/search
func (h *MemoryHandler) Search(c *gin.Context) {
	var req memorySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	filters := map[string]any{}
	if req.ContentType != "" {
		if !entity.ValidContentType(entity.ContentType(req.ContentType)) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid content_type: " + req.ContentType})
			return
		}
		filters["content_type"] = req.ContentType
	}
	if len(req.Categories) > 0 {
		filters["categories"] = map[string]any{"$in": req.Categories}
	}

	memories, err := h.store.Search(c.Request.Context(), req.Query, req.Limit, filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memories)
}

// Extract schedules background extraction over a conversation's
// unprocessed messages and returns immediately.
// POST /api/v1/memories/extract/:conversation_id
func (h *MemoryHandler) Extract(c *gin.Context) {
	if h.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Memory extraction is not configured"})
		return
	}

	conversationID := c.Param("conversation_id")
	conv, err := h.conversations.FindByID(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	agent, err := h.agents.FindByID(c.Request.Context(), conv.AgentID)
	if err != nil {
		respondError(c, err)
		return
	}

	safego.Go(h.logger, "api-extraction", func() {
		ctx, cancel := context.WithTimeout(context.Background(), extractRequestTimeout)
		defer cancel()
		count, err := h.extractor.ExtractFromConversation(ctx, conversationID, agent)
		if err != nil {
			h.logger.Warn("Requested extraction failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			return
		}
		h.logger.Info("Requested extraction finished",
			zap.String("conversation_id", conversationID),
			zap.Int("count", count),
		)
	})

	c.JSON(http.StatusAccepted, gin.H{
		"message":         "Memory extraction scheduled",
		"conversation_id": conversationID,
	})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
)

// AgentHandler serves agent CRUD.
type AgentHandler struct {
	agents repository.AgentRepository
	logger *zap.Logger
}

// NewAgentHandler creates the agent handler.
func NewAgentHandler(agents repository.AgentRepository, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{agents: agents, logger: logger}
}

type agentCreateRequest struct {
	Slug         string                 `json:"slug" binding:"required"`
	Name         string                 `json:"name" binding:"required"`
	SystemPrompt string                 `json:"system_prompt" binding:"required"`
	LLM          entity.LLMTriple       `json:"llm" binding:"required"`
	Fallbacks    []entity.FallbackEntry `json:"fallback_chain"`
	Capabilities *entity.Capabilities   `json:"capabilities"`
	Memory       *entity.MemorySettings `json:"memory"`
	EnabledTools []string               `json:"enabled_tools"`
}

// List returns all agents, newest first.
// GET /api/v1/agents
func (h *AgentHandler) List(c *gin.Context) {
	agents, err := h.agents.FindAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

// Create inserts a new agent. Slug conflicts are 409; created agents are
// never the default.
// POST /api/v1/agents
func (h *AgentHandler) Create(c *gin.Context) {
	var req agentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	now := time.Now().UTC()
	agent := &entity.Agent{
		Slug:         req.Slug,
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		LLM:          req.LLM,
		Fallbacks:    req.Fallbacks,
		Memory:       entity.DefaultMemorySettings(),
		EnabledTools: req.EnabledTools,
		IsDefault:    false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Capabilities != nil {
		agent.Capabilities = *req.Capabilities
	}
	if req.Memory != nil {
		agent.Memory = *req.Memory
	}

	if err := h.agents.Create(c.Request.Context(), agent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// Get returns one agent.
// GET /api/v1/agents/:id
func (h *AgentHandler) Get(c *gin.Context) {
	agent, err := h.agents.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Update applies a partial update.
// PUT /api/v1/agents/:id
func (h *AgentHandler) Update(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No fields to update"})
		return
	}

	agent, err := h.agents.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// Delete removes an agent. The default agent cannot be deleted.
// DELETE /api/v1/agents/:id
func (h *AgentHandler) Delete(c *gin.Context) {
	if err := h.agents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

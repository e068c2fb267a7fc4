package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/application"
	"github.com/aria-ai/aria/internal/infrastructure/mcp"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

// ToolHandler serves the tool registry surface: listing, execution, and
// runtime management of remote tool servers.
type ToolHandler struct {
	router  *domaintool.Router
	sync    *application.ToolSync
	servers *mcp.Manager
	logger  *zap.Logger
}

// NewToolHandler creates the tool handler. sync and servers may be nil
// when remote tools are disabled; the server endpoints then 404.
func NewToolHandler(router *domaintool.Router, sync *application.ToolSync, servers *mcp.Manager, logger *zap.Logger) *ToolHandler {
	return &ToolHandler{router: router, sync: sync, servers: servers, logger: logger}
}

type toolView struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Kind        string         `json:"kind"`
}

type executeToolRequest struct {
	Name           string         `json:"name" binding:"required"`
	Arguments      map[string]any `json:"arguments"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

type addServerRequest struct {
	ID      string            `json:"id" binding:"required"`
	Command string            `json:"command" binding:"required"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// List returns every registered tool definition, optionally filtered by
// kind.
// GET /api/v1/tools?type=builtin|mcp
func (h *ToolHandler) List(c *gin.Context) {
	kind := c.Query("type")
	if kind != "" && kind != string(domaintool.KindBuiltin) && kind != string(domaintool.KindMCP) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid tool type: " + kind})
		return
	}

	views := []toolView{}
	for _, def := range h.router.Definitions(nil) {
		if kind != "" && string(def.Kind) != kind {
			continue
		}
		views = append(views, toolView{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.JSONSchema(),
			Kind:        string(def.Kind),
		})
	}
	c.JSON(http.StatusOK, views)
}

// Stats reports registered tool counts by kind.
// GET /api/v1/tools/stats
func (h *ToolHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Counts())
}

// Execute runs one tool call directly. Execution failures come back in
// the result body with status=error, not as an HTTP error.
// POST /api/v1/tools/execute
func (h *ToolHandler) Execute(c *gin.Context) {
	var req executeToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	result := h.router.Execute(c.Request.Context(), req.Name, req.Arguments, timeout)
	c.JSON(http.StatusOK, result)
}

// ListServers reports every remote tool server's status.
// GET /api/v1/tools/servers
func (h *ToolHandler) ListServers(c *gin.Context) {
	if h.servers == nil {
		c.JSON(http.StatusOK, []mcp.ServerStatus{})
		return
	}
	c.JSON(http.StatusOK, h.servers.ListServers())
}

// AddServer connects a remote tool server at runtime and registers its
// tools.
// POST /api/v1/tools/servers
func (h *ToolHandler) AddServer(c *gin.Context) {
	if h.sync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Remote tool servers are not configured"})
		return
	}

	var req addServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	registered, err := h.sync.AddServer(c.Request.Context(), req.ID, req.Command, req.Args, req.Env)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":               req.ID,
		"registered_tools": registered,
	})
}

// RemoveServer disconnects a remote tool server and unregisters its
// tools.
// DELETE /api/v1/tools/servers/:id
func (h *ToolHandler) RemoveServer(c *gin.Context) {
	id := c.Param("id")
	if h.sync == nil || !h.sync.RemoveServer(id) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Server not found: " + id})
		return
	}
	c.Status(http.StatusNoContent)
}

// ServerTools lists one server's tools.
// GET /api/v1/tools/servers/:id/tools
func (h *ToolHandler) ServerTools(c *gin.Context) {
	id := c.Param("id")
	if h.servers == nil || h.servers.Server(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Server not found: " + id})
		return
	}

	views := []toolView{}
	for _, t := range h.servers.ServerTools(id) {
		def := t.Definition()
		views = append(views, toolView{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.JSONSchema(),
			Kind:        string(def.Kind),
		})
	}
	c.JSON(http.StatusOK, views)
}

package application

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/infrastructure/config"
	"github.com/aria-ai/aria/internal/infrastructure/mcp"
	"github.com/aria-ai/aria/pkg/errors"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

// ServerManager is the slice of the remote server manager ToolSync
// drives. Satisfied by *mcp.Manager.
type ServerManager interface {
	AddServer(ctx context.Context, serverID, command string, args []string, env map[string]string) error
	RemoveServer(serverID string) bool
	ServerTools(serverID string) []domaintool.Tool
	ListServers() []mcp.ServerStatus
}

// ToolSync keeps the tool router and the remote server manager
// consistent: every server add/remove goes through here, whether it
// came from the HTTP API or the registry file watcher.
type ToolSync struct {
	router  *domaintool.Router
	servers ServerManager
	logger  *zap.Logger

	mu    sync.Mutex
	owned map[string][]string // server id -> tool names this sync registered
}

// NewToolSync creates the sync service.
func NewToolSync(router *domaintool.Router, servers ServerManager, logger *zap.Logger) *ToolSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolSync{
		router:  router,
		servers: servers,
		logger:  logger,
		owned:   map[string][]string{},
	}
}

// AddServer connects a server and registers its tools with the router.
// A name collision with an already registered tool is a soft conflict:
// the first registration wins and the remote tool is skipped. Returns
// how many tools were registered.
func (s *ToolSync) AddServer(ctx context.Context, serverID, command string, args []string, env map[string]string) (int, error) {
	if err := s.servers.AddServer(ctx, serverID, command, args, env); err != nil {
		return 0, err
	}

	var registered []string
	for _, t := range s.servers.ServerTools(serverID) {
		if err := s.router.Register(t); err != nil {
			if errors.IsAlreadyExists(err) {
				s.logger.Warn("Tool name collision, keeping existing registration",
					zap.String("server_id", serverID),
					zap.String("tool", t.Name()),
				)
				continue
			}
			s.logger.Error("Failed to register remote tool",
				zap.String("server_id", serverID),
				zap.String("tool", t.Name()),
				zap.Error(err),
			)
			continue
		}
		registered = append(registered, t.Name())
	}

	s.mu.Lock()
	s.owned[serverID] = registered
	s.mu.Unlock()
	return len(registered), nil
}

// RemoveServer disconnects a server and unregisters the tools this
// sync registered for it. Names that collided at add time were never
// registered here and stay with their original owner. Returns false if
// the id is unknown.
func (s *ToolSync) RemoveServer(serverID string) bool {
	if !s.servers.RemoveServer(serverID) {
		return false
	}

	s.mu.Lock()
	names := s.owned[serverID]
	delete(s.owned, serverID)
	s.mu.Unlock()

	for _, name := range names {
		s.router.Unregister(name)
	}
	return true
}

// Apply reconciles the running servers against a registry revision:
// servers that appeared are added, servers that vanished are removed,
// existing servers are left untouched. A command change requires the
// entry to be removed and re-added.
func (s *ToolSync) Apply(ctx context.Context, registry *config.MCPServers) {
	if registry == nil {
		return
	}

	current := map[string]bool{}
	for _, status := range s.servers.ListServers() {
		current[status.ID] = true
	}

	for id, entry := range registry.Servers {
		if current[id] {
			continue
		}
		if _, err := s.AddServer(ctx, id, entry.Command, entry.Args, entry.Env); err != nil {
			s.logger.Warn("Registry server failed to start",
				zap.String("server_id", id),
				zap.Error(err),
			)
		}
	}

	for id := range current {
		if _, keep := registry.Servers[id]; !keep {
			s.RemoveServer(id)
		}
	}
}

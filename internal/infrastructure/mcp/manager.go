package mcp

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/pkg/errors"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

// ServerStatus is one row in the server listing.
type ServerStatus struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
	Command   string `json:"command"`
	ToolCount int    `json:"tool_count"`
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Manager owns the set of connected tool servers and exposes their
// tools as a single surface.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*Client
	logger  *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		servers: map[string]*Client{},
		logger:  logger,
	}
}

// AddServer connects to a new server under the given id. A duplicate
// id is an error; a failed connection leaves no entry behind.
func (m *Manager) AddServer(ctx context.Context, serverID, command string, args []string, env map[string]string) error {
	m.mu.Lock()
	if _, exists := m.servers[serverID]; exists {
		m.mu.Unlock()
		return errors.NewAlreadyExistsError("mcp server already exists: " + serverID)
	}
	m.mu.Unlock()

	client := NewClient(command, args, env, m.logger.With(zap.String("server_id", serverID)))
	if err := client.Connect(ctx); err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to connect to mcp server "+serverID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.servers[serverID]; exists {
		// Lost a concurrent add race; keep the winner.
		client.Disconnect()
		return errors.NewAlreadyExistsError("mcp server already exists: " + serverID)
	}
	m.servers[serverID] = client
	m.logger.Info("Added MCP server",
		zap.String("server_id", serverID),
		zap.Int("tools", len(client.Tools())),
	)
	return nil
}

// RemoveServer disconnects and evicts a server. Returns false if the
// id is unknown.
func (m *Manager) RemoveServer(serverID string) bool {
	m.mu.Lock()
	client, ok := m.servers[serverID]
	if ok {
		delete(m.servers, serverID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	client.Disconnect()
	m.logger.Info("Removed MCP server", zap.String("server_id", serverID))
	return true
}

// Server returns the client for a server id, or nil.
func (m *Manager) Server(serverID string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.servers[serverID]
}

// ListServers reports the status of every registered server.
func (m *Manager) ListServers() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.servers))
	for id, client := range m.servers {
		status := ServerStatus{
			ID:        id,
			Connected: client.IsConnected(),
			Command:   client.CommandLine(),
			ToolCount: len(client.Tools()),
		}
		if info := client.ServerInfo(); info != nil {
			status.Name = info.Name
			status.Version = info.Version
		}
		out = append(out, status)
	}
	return out
}

// AllTools returns every connected server's tools wrapped in the
// common tool interface.
func (m *Manager) AllTools() []domaintool.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tools []domaintool.Tool
	for _, client := range m.servers {
		if !client.IsConnected() {
			continue
		}
		for _, info := range client.Tools() {
			tools = append(tools, NewRemoteTool(client, info, m.logger))
		}
	}
	return tools
}

// ServerTools returns the tools of one server, or nil if it is
// unknown or disconnected.
func (m *Manager) ServerTools(serverID string) []domaintool.Tool {
	m.mu.RLock()
	client := m.servers[serverID]
	m.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return nil
	}
	var tools []domaintool.Tool
	for _, info := range client.Tools() {
		tools = append(tools, NewRemoteTool(client, info, m.logger))
	}
	return tools
}

// ShutdownAll disconnects every server in parallel.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	servers := m.servers
	m.servers = map[string]*Client{}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, client := range servers {
		wg.Add(1)
		go func(id string, c *Client) {
			defer wg.Done()
			c.Disconnect()
		}(id, client)
	}
	wg.Wait()
	m.logger.Info("Shut down all MCP servers", zap.Int("count", len(servers)))
}

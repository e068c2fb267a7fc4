package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// MCPServers is the remote tool server registry file, keyed by server id.
type MCPServers struct {
	Servers map[string]MCPServerEntry `json:"servers"`
}

// MCPServerEntry describes one stdio tool server.
type MCPServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// LoadMCPServers reads the registry file. A missing file yields an empty
// registry, not an error.
func LoadMCPServers(path string) (*MCPServers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &MCPServers{Servers: map[string]MCPServerEntry{}}, nil
		}
		return nil, err
	}

	var cfg MCPServers
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]MCPServerEntry{}
	}
	return &cfg, nil
}

// SaveMCPServers writes the registry file.
func SaveMCPServers(path string, cfg *MCPServers) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// WatchMCPServers watches the registry file and invokes onChange with each
// successfully parsed revision. Events are debounced because editors emit
// bursts of writes. Blocks until ctx is cancelled.
func WatchMCPServers(ctx context.Context, path string, logger *zap.Logger, onChange func(*MCPServers)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: the file may not exist yet, and editors often
	// replace it via rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger.Info("MCP registry watch started", zap.String("path", path))

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(300*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			cfg, err := LoadMCPServers(path)
			if err != nil {
				logger.Warn("MCP registry reload failed", zap.Error(err))
				continue
			}
			logger.Info("MCP registry reloaded", zap.Int("servers", len(cfg.Servers)))
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("MCP registry watcher error", zap.Error(err))
		}
	}
}

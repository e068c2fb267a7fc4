package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/pkg/safego"
)

const (
	// DefaultRequestTimeout bounds one JSON-RPC round trip. A timed-out
	// request fails without tearing down the connection.
	DefaultRequestTimeout = 30 * time.Second

	// shutdownGrace is how long disconnect waits after SIGTERM before
	// killing the process.
	shutdownGrace = 5 * time.Second

	clientName    = "aria"
	clientVersion = "0.2.0"
)

// Client talks to one tool server over the child process's stdin and
// stdout, newline-framed JSON-RPC 2.0. The connection is not
// reentrancy-safe; all requests are serialized under an internal lock.
type Client struct {
	command string
	args    []string
	env     map[string]string

	timeout time.Duration
	logger  *zap.Logger

	reqMu     sync.Mutex // serializes request/response round trips
	stateMu   sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	respCh    chan rpcResponse
	connected bool

	serverInfo *ServerInfo
	tools      map[string]ToolInfo
	reqID      int64
}

// NewClient creates a client for the given server command. Connect
// must be called before any request.
func NewClient(command string, args []string, env map[string]string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		command: command,
		args:    args,
		env:     env,
		timeout: DefaultRequestTimeout,
		logger:  logger,
		tools:   map[string]ToolInfo{},
	}
}

// Connect starts the server process and performs the handshake:
// initialize, notifications/initialized, then tools/list.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Starting tool server", zap.String("command", c.CommandLine()))

	cmd := exec.Command(c.command, c.args...)
	if len(c.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	cmd.Stderr = &logWriter{logger: c.logger, command: c.command}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.command, err)
	}

	c.stateMu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.respCh = make(chan rpcResponse, 4)
	c.connected = true
	c.stateMu.Unlock()

	safego.Go(c.logger, "mcp-reader:"+c.command, func() {
		c.readLoop(stdout)
	})

	initRaw, err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ClientInfo:      clientInfo{Name: clientName, Version: clientVersion},
	})
	if err != nil {
		c.Disconnect()
		return fmt.Errorf("initialize: %w", err)
	}

	var init initializeResult
	if err := json.Unmarshal(initRaw, &init); err != nil {
		c.Disconnect()
		return fmt.Errorf("initialize result: %w", err)
	}
	c.stateMu.Lock()
	c.serverInfo = &init.ServerInfo
	c.stateMu.Unlock()

	if err := c.notify("notifications/initialized", nil); err != nil {
		c.Disconnect()
		return fmt.Errorf("initialized notification: %w", err)
	}

	if err := c.refreshTools(ctx); err != nil {
		c.Disconnect()
		return err
	}

	c.logger.Info("Connected to tool server",
		zap.String("name", init.ServerInfo.Name),
		zap.String("version", init.ServerInfo.Version),
		zap.Int("tools", len(c.Tools())),
	)
	return nil
}

// Disconnect terminates the server process with a grace window before
// killing it. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.stateMu.Lock()
	cmd := c.cmd
	stdin := c.stdin
	c.cmd = nil
	c.stdin = nil
	c.connected = false
	c.stateMu.Unlock()

	if cmd == nil {
		return
	}
	if stdin != nil {
		stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if cmd.Process != nil {
		cmd.Process.Signal(os.Interrupt)
	}
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
	}
	c.logger.Info("Disconnected from tool server", zap.String("command", c.command))
}

// IsConnected reports whether the server process is up and handshaken.
func (c *Client) IsConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connected && c.cmd != nil
}

// ServerInfo returns the identity reported during the handshake, or
// nil before Connect.
func (c *Client) ServerInfo() *ServerInfo {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.serverInfo
}

// Tools returns the cached tool definitions from the last tools/list.
func (c *Client) Tools() []ToolInfo {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	out := make([]ToolInfo, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

// CommandLine returns the full server command for display.
func (c *Client) CommandLine() string {
	return strings.Join(append([]string{c.command}, c.args...), " ")
}

// CallTool invokes a tool on the server and returns its result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("not connected to tool server")
	}
	c.stateMu.Lock()
	_, known := c.tools[name]
	c.stateMu.Unlock()
	if !known {
		return nil, fmt.Errorf("tool %q not found on server", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	raw, err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("tools/call result: %w", err)
	}
	return &result, nil
}

func (c *Client) refreshTools(ctx context.Context) error {
	raw, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	var list toolsListResult
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("tools/list result: %w", err)
	}

	c.stateMu.Lock()
	c.tools = make(map[string]ToolInfo, len(list.Tools))
	for _, t := range list.Tools {
		c.tools[t.Name] = t
	}
	c.stateMu.Unlock()

	c.logger.Info("Refreshed tool list", zap.Int("tools", len(list.Tools)))
	return nil
}

// call sends one request and waits for the matching response. Request
// ids increase monotonically; a stale response left over from an
// earlier timeout is skipped by id.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.stateMu.Lock()
	stdin := c.stdin
	respCh := c.respCh
	c.reqID++
	id := c.reqID
	c.stateMu.Unlock()
	if stdin == nil {
		return nil, fmt.Errorf("process not started")
	}

	if err := writeFrame(stdin, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			c.logger.Error("Timeout waiting for response", zap.String("method", method))
			return nil, fmt.Errorf("timeout waiting for response to %s", method)
		case resp, ok := <-respCh:
			if !ok {
				return nil, fmt.Errorf("server closed connection")
			}
			if resp.ID != id {
				c.logger.Debug("Dropping stale response", zap.Int64("id", resp.ID))
				continue
			}
			if resp.Error != nil {
				return nil, fmt.Errorf("server error %d: %s", resp.Error.Code, resp.Error.Message)
			}
			return resp.Result, nil
		}
	}
}

func (c *Client) notify(method string, params any) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.stateMu.Lock()
	stdin := c.stdin
	c.stateMu.Unlock()
	if stdin == nil {
		return fmt.Errorf("process not started")
	}
	return writeFrame(stdin, rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// readLoop pumps newline-framed responses from the server's stdout
// into respCh until the stream ends.
func (c *Client) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("Undecodable server frame", zap.Error(err))
			continue
		}
		if resp.Method != "" && resp.ID == 0 {
			// Server-initiated notification, nothing to route.
			c.logger.Debug("Server notification", zap.String("method", resp.Method))
			continue
		}

		c.stateMu.Lock()
		ch := c.respCh
		c.stateMu.Unlock()
		if ch == nil {
			return
		}
		select {
		case ch <- resp:
		default:
			c.logger.Warn("Dropping response, no request waiting", zap.Int64("id", resp.ID))
		}
	}

	c.stateMu.Lock()
	if c.respCh != nil {
		close(c.respCh)
		c.respCh = nil
	}
	c.connected = false
	c.stateMu.Unlock()
	c.logger.Info("Tool server stdout closed", zap.String("command", c.command))
}

func writeFrame(w io.Writer, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// logWriter bridges the server's stderr into the structured log,
// line by line.
type logWriter struct {
	logger  *zap.Logger
	command string
	buf     []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		if line != "" {
			w.logger.Debug("Tool server stderr",
				zap.String("command", w.command),
				zap.String("line", line),
			)
		}
	}
	return len(p), nil
}

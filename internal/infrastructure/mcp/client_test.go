package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestHelperProcess is not a test. When re-executed with GO_MCP_HELPER
// set it acts as a newline-framed JSON-RPC tool server on stdio,
// advertising a single "ping" tool.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_MCP_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	scanner := bufio.NewScanner(os.Stdin)
	enc := json.NewEncoder(os.Stdout)

	reply := func(id int64, result map[string]any) {
		enc.Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	}

	for scanner.Scan() {
		var req struct {
			ID     int64          `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		switch req.Method {
		case "initialize":
			reply(req.ID, map[string]any{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "demo", "version": "1.0"},
			})
		case "notifications/initialized":
			// Notification, no response.
		case "tools/list":
			reply(req.ID, map[string]any{
				"tools": []map[string]any{{
					"name":        "ping",
					"description": "Reply with pong",
					"inputSchema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"message":  map[string]any{"type": "string", "description": "text to echo"},
							"delay_ms": map[string]any{"type": "number"},
							"fail":     map[string]any{"type": "boolean"},
						},
						"required": []string{"message"},
					},
				}},
			})
		case "tools/call":
			args, _ := req.Params["arguments"].(map[string]any)
			if d, ok := args["delay_ms"].(float64); ok {
				time.Sleep(time.Duration(d) * time.Millisecond)
			}
			msg, _ := args["message"].(string)
			text := "pong: " + msg
			isError := false
			if fail, _ := args["fail"].(bool); fail {
				text = "ping failed"
				isError = true
			}
			reply(req.ID, map[string]any{
				"content": []map[string]any{{"type": "text", "text": text}},
				"isError": isError,
			})
		}
	}
}

func newHelperClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(os.Args[0], []string{"-test.run=TestHelperProcess"},
		map[string]string{"GO_MCP_HELPER": "1"}, zap.NewNop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func TestClient_ConnectHandshake(t *testing.T) {
	c := newHelperClient(t)

	info := c.ServerInfo()
	if info == nil || info.Name != "demo" || info.Version != "1.0" {
		t.Fatalf("server info = %+v", info)
	}
	tools := c.Tools()
	if len(tools) != 1 || tools[0].Name != "ping" {
		t.Fatalf("tools = %+v", tools)
	}
	if !c.IsConnected() {
		t.Error("client not connected after handshake")
	}
}

func TestClient_CallTool(t *testing.T) {
	c := newHelperClient(t)

	result, err := c.CallTool(context.Background(), "ping", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.IsError {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "pong: hi" {
		t.Errorf("content = %+v", result.Content)
	}
}

func TestClient_ServerReportedError(t *testing.T) {
	c := newHelperClient(t)

	result, err := c.CallTool(context.Background(), "ping", map[string]any{"message": "x", "fail": true})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !result.IsError {
		t.Errorf("expected isError, got %+v", result)
	}
}

func TestClient_UnknownToolRejected(t *testing.T) {
	c := newHelperClient(t)

	if _, err := c.CallTool(context.Background(), "ghost", nil); err == nil {
		t.Error("expected unknown-tool error")
	}
}

func TestClient_TimeoutKeepsConnection(t *testing.T) {
	c := newHelperClient(t)
	c.timeout = 100 * time.Millisecond

	_, err := c.CallTool(context.Background(), "ping", map[string]any{
		"message":  "slow",
		"delay_ms": float64(400),
	})
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout, got %v", err)
	}

	// The stale response arrives later and must be skipped by id; the
	// connection itself keeps working.
	c.timeout = DefaultRequestTimeout
	time.Sleep(500 * time.Millisecond)
	result, err := c.CallTool(context.Background(), "ping", map[string]any{"message": "again"})
	if err != nil {
		t.Fatalf("call after timeout: %v", err)
	}
	if result.Content[0].Text != "pong: again" {
		t.Errorf("content = %+v", result.Content)
	}
}

func TestClient_DisconnectStopsRequests(t *testing.T) {
	c := newHelperClient(t)
	c.Disconnect()

	if c.IsConnected() {
		t.Error("still connected after disconnect")
	}
	if _, err := c.CallTool(context.Background(), "ping", map[string]any{"message": "x"}); err == nil {
		t.Error("expected error after disconnect")
	}
}

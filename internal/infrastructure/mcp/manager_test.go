package mcp

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/pkg/errors"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

func helperEntry() (string, []string, map[string]string) {
	return os.Args[0], []string{"-test.run=TestHelperProcess"}, map[string]string{"GO_MCP_HELPER": "1"}
}

func TestManager_AddDuplicateServerFails(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.ShutdownAll()
	cmd, args, env := helperEntry()

	if err := m.AddServer(context.Background(), "demo", cmd, args, env); err != nil {
		t.Fatalf("first add: %v", err)
	}
	err := m.AddServer(context.Background(), "demo", cmd, args, env)
	if !errors.IsAlreadyExists(err) {
		t.Errorf("expected ALREADY_EXISTS, got %v", err)
	}
}

func TestManager_AllToolsAndRemove(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.ShutdownAll()
	cmd, args, env := helperEntry()

	if err := m.AddServer(context.Background(), "demo", cmd, args, env); err != nil {
		t.Fatalf("add: %v", err)
	}

	tools := m.AllTools()
	if len(tools) != 1 || tools[0].Name() != "ping" {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].Kind() != domaintool.KindMCP {
		t.Errorf("kind = %s", tools[0].Kind())
	}

	if !m.RemoveServer("demo") {
		t.Fatal("remove returned false")
	}
	if got := m.AllTools(); len(got) != 0 {
		t.Errorf("tools after remove = %+v", got)
	}
	if m.RemoveServer("demo") {
		t.Error("second remove returned true")
	}
}

func TestManager_RemoteToolExecute(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.ShutdownAll()
	cmd, args, env := helperEntry()

	if err := m.AddServer(context.Background(), "demo", cmd, args, env); err != nil {
		t.Fatalf("add: %v", err)
	}

	tool := m.AllTools()[0]
	def := tool.Definition()
	if err := def.ValidateArguments(map[string]any{"message": "hi"}); err != nil {
		t.Fatalf("schema did not accept valid args: %v", err)
	}
	if err := def.ValidateArguments(map[string]any{}); err == nil {
		t.Error("schema accepted missing required param")
	}

	res := tool.Execute(context.Background(), map[string]any{"message": "hi"})
	if res.Status != domaintool.StatusSuccess || res.Output != "pong: hi" {
		t.Fatalf("result = %+v", res)
	}
	if res.CompletedAt.Before(res.StartedAt) {
		t.Errorf("timestamps out of order: %+v", res)
	}

	res = tool.Execute(context.Background(), map[string]any{"message": "x", "fail": true})
	if res.Status != domaintool.StatusError || res.Error == "" {
		t.Errorf("error result = %+v", res)
	}
}

package tool

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

func TestShell_CapturesStdoutAndStderrSeparately(t *testing.T) {
	sh := NewShellTool(0, nil, nil, "", zap.NewNop())

	res := sh.Execute(context.Background(), map[string]any{
		"command": "echo out; echo err 1>&2",
	})
	if res.Status != domaintool.StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	out := res.Output.(map[string]any)
	if !strings.Contains(out["stdout"].(string), "out") {
		t.Errorf("stdout = %q", out["stdout"])
	}
	if !strings.Contains(out["stderr"].(string), "err") {
		t.Errorf("stderr = %q", out["stderr"])
	}
	if out["exit_code"] != 0 {
		t.Errorf("exit_code = %v", out["exit_code"])
	}
}

func TestShell_NonZeroExitIsErrorWithStderrExcerpt(t *testing.T) {
	sh := NewShellTool(0, nil, nil, "", zap.NewNop())

	res := sh.Execute(context.Background(), map[string]any{
		"command": "echo failure detail 1>&2; exit 3",
	})
	if res.Status != domaintool.StatusError {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Error, "code 3") || !strings.Contains(res.Error, "failure detail") {
		t.Errorf("error = %q", res.Error)
	}
	out := res.Output.(map[string]any)
	if out["exit_code"] != 3 {
		t.Errorf("exit_code = %v", out["exit_code"])
	}
}

func TestShell_TimeoutKillsProcess(t *testing.T) {
	sh := NewShellTool(50*time.Millisecond, nil, nil, "", zap.NewNop())

	start := time.Now()
	res := sh.Execute(context.Background(), map[string]any{
		"command": "sleep 5",
	})
	if time.Since(start) > 2*time.Second {
		t.Fatal("process was not killed promptly")
	}
	if res.Status != domaintool.StatusError || !strings.Contains(res.Error, "timed out") {
		t.Errorf("result = %+v", res)
	}
}

func TestShell_DeniedPrefix(t *testing.T) {
	sh := NewShellTool(0, nil, []string{"rm "}, "", zap.NewNop())

	res := sh.Execute(context.Background(), map[string]any{
		"command": "rm -rf /",
	})
	if res.Status != domaintool.StatusError || !strings.Contains(res.Error, "denied") {
		t.Errorf("result = %+v", res)
	}
}

func TestShell_AllowlistRestricts(t *testing.T) {
	sh := NewShellTool(0, []string{"echo"}, nil, "", zap.NewNop())

	if res := sh.Execute(context.Background(), map[string]any{"command": "echo ok"}); res.Status != domaintool.StatusSuccess {
		t.Errorf("allowed command failed: %+v", res)
	}
	if res := sh.Execute(context.Background(), map[string]any{"command": "ls"}); res.Status != domaintool.StatusError {
		t.Errorf("disallowed command ran: %+v", res)
	}
}

package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

// DefaultShellTimeout bounds a command when the call supplies none.
const DefaultShellTimeout = 60 * time.Second

// ShellTool runs shell commands with timeout enforcement and optional
// command-prefix filtering.
type ShellTool struct {
	timeout         time.Duration
	allowedCommands []string // nil = all allowed
	deniedCommands  []string
	workDir         string
	logger          *zap.Logger
}

var _ domaintool.Tool = (*ShellTool)(nil)

// NewShellTool creates the shell tool.
func NewShellTool(timeout time.Duration, allowedCommands, deniedCommands []string, workDir string, logger *zap.Logger) *ShellTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	return &ShellTool{
		timeout:         timeout,
		allowedCommands: allowedCommands,
		deniedCommands:  deniedCommands,
		workDir:         workDir,
		logger:          logger,
	}
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Execute shell commands and capture their output. Returns stdout, stderr, and exit code."
}

func (t *ShellTool) Kind() domaintool.Kind { return domaintool.KindBuiltin }

func (t *ShellTool) Definition() domaintool.Definition {
	return domaintool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Kind:        t.Kind(),
		Parameters: []domaintool.Parameter{
			{
				Name:        "command",
				Type:        "string",
				Description: "The shell command to execute",
				Required:    true,
			},
			{
				Name:        "working_directory",
				Type:        "string",
				Description: "Working directory for the command (optional)",
			},
			{
				Name:        "timeout",
				Type:        "number",
				Description: "Command timeout in seconds (optional, overrides default)",
			},
		},
	}
}

func (t *ShellTool) checkCommand(command string) error {
	for _, denied := range t.deniedCommands {
		if strings.HasPrefix(command, denied) {
			return fmt.Errorf("Command denied: starts with '%s'", denied)
		}
	}
	if t.allowedCommands == nil {
		return nil
	}
	for _, allowed := range t.allowedCommands {
		if strings.HasPrefix(command, allowed) {
			return nil
		}
	}
	return fmt.Errorf("Command not in allowed list")
}

// Execute runs the command, killing the process on timeout. Stdout and
// stderr are captured separately; a non-zero exit is an error result
// that still carries both streams.
func (t *ShellTool) Execute(ctx context.Context, args map[string]any) *domaintool.Result {
	command, _ := args["command"].(string)
	if command == "" {
		return domaintool.ErrorResult(t.Name(), "Invalid arguments: missing required parameter: command")
	}

	workDir := t.workDir
	if wd, ok := args["working_directory"].(string); ok && wd != "" {
		workDir = wd
	}

	timeout := t.timeout
	if secs, ok := args["timeout"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	if err := t.checkCommand(command); err != nil {
		return domaintool.ErrorResult(t.Name(), err.Error())
	}

	t.logger.Info("Executing shell command",
		zap.String("command", command),
		zap.Duration("timeout", timeout),
	)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return &domaintool.Result{
			ToolName: t.Name(),
			Status:   domaintool.StatusError,
			Error:    fmt.Sprintf("Command timed out after %v", timeout),
			Metadata: map[string]any{
				"command": command,
				"timeout": timeout.Seconds(),
			},
		}
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return domaintool.ErrorResult(t.Name(), "Command execution failed: "+runErr.Error())
		}
	}

	output := map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}
	metadata := map[string]any{
		"command":           command,
		"exit_code":         exitCode,
		"working_directory": workDir,
	}

	if exitCode != 0 {
		errMsg := fmt.Sprintf("Command exited with code %d", exitCode)
		if s := stderr.String(); s != "" {
			if len(s) > 200 {
				s = s[:200]
			}
			errMsg += ": " + s
		}
		return &domaintool.Result{
			ToolName: t.Name(),
			Status:   domaintool.StatusError,
			Output:   output,
			Error:    errMsg,
			Metadata: metadata,
		}
	}

	return &domaintool.Result{
		ToolName: t.Name(),
		Status:   domaintool.StatusSuccess,
		Output:   output,
		Metadata: metadata,
	}
}

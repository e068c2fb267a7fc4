package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

// RemoteTool adapts one server-advertised tool to the common tool
// interface so the router can dispatch to it like a built-in.
type RemoteTool struct {
	client *Client
	info   ToolInfo
	params []domaintool.Parameter
	logger *zap.Logger
}

var _ domaintool.Tool = (*RemoteTool)(nil)

// NewRemoteTool wraps a server tool definition.
func NewRemoteTool(client *Client, info ToolInfo, logger *zap.Logger) *RemoteTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteTool{
		client: client,
		info:   info,
		params: parseInputSchema(info.InputSchema),
		logger: logger,
	}
}

func (t *RemoteTool) Name() string          { return t.info.Name }
func (t *RemoteTool) Description() string   { return t.info.Description }
func (t *RemoteTool) Kind() domaintool.Kind { return domaintool.KindMCP }

func (t *RemoteTool) Definition() domaintool.Definition {
	return domaintool.Definition{
		Name:        t.info.Name,
		Description: t.info.Description,
		Parameters:  t.params,
		Kind:        domaintool.KindMCP,
	}
}

// Execute forwards the call to the server. Text content items are
// joined with newlines; the full result stays in metadata.
func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) *domaintool.Result {
	startedAt := time.Now().UTC()

	result, err := t.client.CallTool(ctx, t.info.Name, args)
	completedAt := time.Now().UTC()
	durationMS := completedAt.Sub(startedAt).Milliseconds()

	if err != nil {
		t.logger.Error("Remote tool failed",
			zap.String("tool", t.info.Name),
			zap.Error(err),
		)
		return &domaintool.Result{
			ToolName:    t.info.Name,
			Status:      domaintool.StatusError,
			Error:       "Remote tool execution failed: " + err.Error(),
			DurationMS:  durationMS,
			StartedAt:   startedAt,
			CompletedAt: completedAt,
		}
	}

	var parts []string
	for _, item := range result.Content {
		if item.Type == "text" {
			parts = append(parts, item.Text)
		}
	}
	var output any
	if len(parts) > 0 {
		output = strings.Join(parts, "\n")
	} else {
		output = result
	}

	status := domaintool.StatusSuccess
	errMsg := ""
	if result.IsError {
		status = domaintool.StatusError
		errMsg = "Remote tool reported error"
	}

	return &domaintool.Result{
		ToolName:    t.info.Name,
		Status:      status,
		Output:      output,
		Error:       errMsg,
		DurationMS:  durationMS,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Metadata:    map[string]any{"remote_result": result},
	}
}

// parseInputSchema converts a JSON Schema object into the parameter
// list the validation layer understands. Non-object or empty schemas
// yield no parameters; validation then accepts only an empty argument
// map, since every supplied name counts as unknown.
func parseInputSchema(schema map[string]any) []domaintool.Parameter {
	if schema == nil || schema["type"] != "object" {
		return nil
	}
	properties, _ := schema["properties"].(map[string]any)
	if len(properties) == 0 {
		return nil
	}

	required := map[string]bool{}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	params := make([]domaintool.Parameter, 0, len(properties))
	for name, raw := range properties {
		prop, _ := raw.(map[string]any)
		p := domaintool.Parameter{
			Name:     name,
			Type:     "string",
			Required: required[name],
		}
		if prop != nil {
			if typ, ok := prop["type"].(string); ok {
				p.Type = typ
			}
			if desc, ok := prop["description"].(string); ok {
				p.Description = desc
			}
			p.Default = prop["default"]
			if enum, ok := prop["enum"].([]any); ok {
				p.Enum = enum
			}
			if items, ok := prop["items"].(map[string]any); ok {
				p.Items = items
			}
			if nested, ok := prop["properties"].(map[string]any); ok {
				p.Properties = nested
			}
		}
		params = append(params, p)
	}
	return params
}

// String implements fmt.Stringer for log readability.
func (t *RemoteTool) String() string {
	return fmt.Sprintf("RemoteTool(%s)", t.info.Name)
}

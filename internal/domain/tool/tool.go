// Package tool defines the execution contract shared by built-in and
// remote tools, and the router that dispatches calls to them.
package tool

import (
	"context"
	"fmt"
	"time"
)

// Kind distinguishes where a tool runs.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindMCP     Kind = "mcp"
)

// Status is the outcome of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Parameter describes one tool argument.
type Parameter struct {
	Name        string
	Type        string // "string" | "number" | "boolean" | "object" | "array"
	Description string
	Required    bool
	Default     any
	Enum        []any
	Items       map[string]any // for array types
	Properties  map[string]any // for object types
}

// Definition is what the model sees: name, description, and a JSON
// Schema for the arguments.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
	Kind        Kind
}

// JSONSchema renders the parameters as a JSON Schema object.
func (d Definition) JSONSchema() map[string]any {
	properties := map[string]any{}
	required := []string{}

	for _, p := range d.Parameters {
		schema := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			schema["enum"] = p.Enum
		}
		if p.Items != nil {
			schema["items"] = p.Items
		}
		if p.Properties != nil {
			schema["properties"] = p.Properties
		}
		if p.Default != nil {
			schema["default"] = p.Default
		}
		properties[p.Name] = schema
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ValidateArguments checks required parameters are present and no
// unknown parameters were supplied. The returned error names the
// offending field.
func (d Definition) ValidateArguments(args map[string]any) error {
	for _, p := range d.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return fmt.Errorf("missing required parameter: %s", p.Name)
		}
	}

	known := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		known[p.Name] = true
	}
	for name := range args {
		if !known[name] {
			return fmt.Errorf("unknown parameter: %s", name)
		}
	}
	return nil
}

// Result is the outcome of one tool execution. Tools report failures
// through Status/Error, never by panicking.
type Result struct {
	ToolName    string         `json:"tool_name"`
	Status      Status         `json:"status"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
}

// IsSuccess reports whether the execution succeeded.
func (r *Result) IsSuccess() bool { return r.Status == StatusSuccess }

// SuccessResult builds a success result.
func SuccessResult(toolName string, output any, metadata map[string]any) *Result {
	return &Result{
		ToolName: toolName,
		Status:   StatusSuccess,
		Output:   output,
		Metadata: metadata,
	}
}

// ErrorResult builds an error result.
func ErrorResult(toolName, errMsg string) *Result {
	return &Result{
		ToolName: toolName,
		Status:   StatusError,
		Error:    errMsg,
	}
}

// Tool is the shared contract for built-in and remote tools. Execute
// never panics past the router; anything the model should know about
// goes into the Result.
type Tool interface {
	Name() string
	Description() string
	Kind() Kind
	Definition() Definition
	Execute(ctx context.Context, args map[string]any) *Result
}

package tool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/pkg/errors"
)

// DefaultExecTimeout bounds a single tool execution when the caller
// passes no explicit timeout.
const DefaultExecTimeout = 300 * time.Second

// Router is the single registry for every executable tool, built-in and
// remote, in one global namespace.
type Router struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRouter creates an empty tool router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. A name collision is an error; the remote-tool
// sync treats it as a soft conflict and keeps the first registration.
func (r *Router) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return errors.NewAlreadyExistsError("tool already registered: " + name)
	}
	r.tools[name] = t
	r.logger.Info("Registered tool",
		zap.String("tool", name),
		zap.String("kind", string(t.Kind())),
	)
	return nil
}

// Unregister removes a tool, reporting whether it was present.
func (r *Router) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	r.logger.Info("Unregistered tool", zap.String("tool", name))
	return true
}

// Get returns a tool by name.
func (r *Router) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered.
func (r *Router) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Definitions returns tool definitions for model consumption, sorted by
// name. A non-nil allowlist restricts the surface.
func (r *Router) Definitions(enabled []string) []Definition {
	var allow map[string]bool
	if enabled != nil {
		allow = make(map[string]bool, len(enabled))
		for _, name := range enabled {
			allow[name] = true
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for name, t := range r.tools {
		if allow != nil && !allow[name] {
			continue
		}
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Counts reports registered tools by kind.
func (r *Router) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[string]int{"total": len(r.tools)}
	for _, t := range r.tools {
		counts[string(t.Kind())]++
	}
	return counts
}

// Execute runs one tool call: locate, validate, execute under a
// timeout. Unknown tool, bad arguments, timeout, and a panicking tool
// all come back as a Result with status=error, never as an error value,
// so the orchestrator can relay them to the model as tool results.
func (r *Router) Execute(ctx context.Context, name string, args map[string]any, timeout time.Duration) *Result {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	startedAt := time.Now().UTC()

	finish := func(res *Result) *Result {
		if res.StartedAt.IsZero() {
			res.StartedAt = startedAt
		}
		if res.CompletedAt.IsZero() {
			res.CompletedAt = time.Now().UTC()
		}
		if res.DurationMS == 0 {
			res.DurationMS = res.CompletedAt.Sub(res.StartedAt).Milliseconds()
		}
		return res
	}

	t, ok := r.Get(name)
	if !ok {
		return finish(ErrorResult(name, fmt.Sprintf("Tool '%s' not found", name)))
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := t.Definition().ValidateArguments(args); err != nil {
		return finish(ErrorResult(name, "Invalid arguments: "+err.Error()))
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resCh := make(chan *Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Tool panicked",
					zap.String("tool", name),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
				)
				resCh <- ErrorResult(name, fmt.Sprintf("Tool execution failed: %v", rec))
			}
		}()
		resCh <- t.Execute(execCtx, args)
	}()

	select {
	case res := <-resCh:
		if res == nil {
			res = ErrorResult(name, "Tool returned no result")
		}
		r.logger.Info("Tool execution completed",
			zap.String("tool", name),
			zap.String("status", string(res.Status)),
			zap.Duration("elapsed", time.Since(startedAt)),
		)
		return finish(res)
	case <-execCtx.Done():
		if execCtx.Err() == context.Canceled {
			return finish(ErrorResult(name, "Tool execution cancelled"))
		}
		r.logger.Warn("Tool execution timed out",
			zap.String("tool", name),
			zap.Duration("timeout", timeout),
		)
		return finish(ErrorResult(name, fmt.Sprintf("Tool execution timed out after %v", timeout)))
	}
}

package tool

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aria-ai/aria/pkg/errors"
)

type stubTool struct {
	name    string
	params  []Parameter
	execute func(ctx context.Context, args map[string]any) *Result
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Kind() Kind          { return KindBuiltin }
func (s *stubTool) Definition() Definition {
	return Definition{Name: s.name, Description: "stub", Parameters: s.params, Kind: KindBuiltin}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]any) *Result {
	return s.execute(ctx, args)
}

func TestRouter_DuplicateRegistrationFails(t *testing.T) {
	r := NewRouter(zap.NewNop())
	mk := func() *stubTool {
		return &stubTool{name: "dup", execute: func(context.Context, map[string]any) *Result {
			return SuccessResult("dup", "ok", nil)
		}}
	}
	if err := r.Register(mk()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(mk())
	if !errors.IsAlreadyExists(err) {
		t.Errorf("expected ALREADY_EXISTS, got %v", err)
	}
}

func TestRouter_UnknownToolIsErrorResult(t *testing.T) {
	r := NewRouter(zap.NewNop())
	res := r.Execute(context.Background(), "ghost", nil, time.Second)
	if res.Status != StatusError {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Error == "" || res.CompletedAt.IsZero() {
		t.Errorf("result = %+v", res)
	}
}

func TestRouter_ValidationFailureNamesField(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&stubTool{
		name:   "echo",
		params: []Parameter{{Name: "text", Type: "string", Required: true}},
		execute: func(context.Context, map[string]any) *Result {
			return SuccessResult("echo", "ok", nil)
		},
	})

	res := r.Execute(context.Background(), "echo", map[string]any{}, time.Second)
	if res.Status != StatusError {
		t.Fatalf("status = %s", res.Status)
	}
	if want := "text"; !contains(res.Error, want) {
		t.Errorf("error %q does not name field %q", res.Error, want)
	}

	res = r.Execute(context.Background(), "echo", map[string]any{"text": "hi", "bogus": 1}, time.Second)
	if res.Status != StatusError || !contains(res.Error, "bogus") {
		t.Errorf("unknown-param result = %+v", res)
	}
}

func TestRouter_TimeoutIsErrorResult(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&stubTool{
		name: "sleepy",
		execute: func(ctx context.Context, _ map[string]any) *Result {
			<-ctx.Done()
			return SuccessResult("sleepy", "too late", nil)
		},
	})

	res := r.Execute(context.Background(), "sleepy", nil, 20*time.Millisecond)
	if res.Status != StatusError {
		t.Fatalf("status = %s", res.Status)
	}
	if !contains(res.Error, "timed out") {
		t.Errorf("error = %q", res.Error)
	}
	if res.DurationMS < 0 {
		t.Errorf("duration_ms = %d", res.DurationMS)
	}
}

func TestRouter_PanicIsErrorResult(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&stubTool{
		name: "bomb",
		execute: func(context.Context, map[string]any) *Result {
			panic("boom")
		},
	})

	res := r.Execute(context.Background(), "bomb", nil, time.Second)
	if res.Status != StatusError || !contains(res.Error, "boom") {
		t.Errorf("result = %+v", res)
	}
}

func TestRouter_DefinitionsHonorAllowlist(t *testing.T) {
	r := NewRouter(zap.NewNop())
	for _, name := range []string{"alpha", "beta"} {
		n := name
		r.Register(&stubTool{name: n, execute: func(context.Context, map[string]any) *Result {
			return SuccessResult(n, "ok", nil)
		}})
	}

	if got := len(r.Definitions(nil)); got != 2 {
		t.Errorf("all definitions = %d", got)
	}
	defs := r.Definitions([]string{"beta"})
	if len(defs) != 1 || defs[0].Name != "beta" {
		t.Errorf("filtered definitions = %+v", defs)
	}
	// Empty allowlist means no tools, not all tools.
	if got := len(r.Definitions([]string{})); got != 0 {
		t.Errorf("empty allowlist definitions = %d", got)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }

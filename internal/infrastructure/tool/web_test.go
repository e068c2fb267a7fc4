package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

func TestWeb_SuccessfulFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("page body"))
	}))
	defer srv.Close()

	wt := NewWebTool(0, 0, zap.NewNop())
	res := wt.Execute(context.Background(), map[string]any{"url": srv.URL + "/page"})
	if res.Status != domaintool.StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	out := res.Output.(map[string]any)
	if out["content"] != "page body" || out["status_code"] != 200 {
		t.Errorf("output = %v", out)
	}
	if !strings.HasSuffix(out["url"].(string), "/page") {
		t.Errorf("final url = %v", out["url"])
	}
}

func TestWeb_RejectsNonHTTPSchemes(t *testing.T) {
	wt := NewWebTool(0, 0, zap.NewNop())
	for _, url := range []string{"ftp://host/x", "file:///etc/passwd", "not a url"} {
		res := wt.Execute(context.Background(), map[string]any{"url": url})
		if res.Status != domaintool.StatusError {
			t.Errorf("%s: expected rejection, got %+v", url, res)
		}
	}
}

func TestWeb_ContentLengthPrecheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	wt := NewWebTool(0, 1024, zap.NewNop())
	res := wt.Execute(context.Background(), map[string]any{"url": srv.URL})
	if res.Status != domaintool.StatusError || !strings.Contains(res.Error, "too large") {
		t.Errorf("result = %+v", res)
	}
}

func TestWeb_StreamingSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response: no Content-Length, so only the streaming
		// cap can catch it.
		flusher := w.(http.Flusher)
		chunk := make([]byte, 4096)
		for i := 0; i < 8; i++ {
			w.Write(chunk)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	wt := NewWebTool(0, 8192, zap.NewNop())
	res := wt.Execute(context.Background(), map[string]any{"url": srv.URL})
	if res.Status != domaintool.StatusError || !strings.Contains(res.Error, "exceeded max size") {
		t.Errorf("result = %+v", res)
	}
}

func TestWeb_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	wt := NewWebTool(0, 0, zap.NewNop())
	res := wt.Execute(context.Background(), map[string]any{"url": srv.URL})
	if res.Status != domaintool.StatusError {
		t.Fatalf("result = %+v", res)
	}
	out := res.Output.(map[string]any)
	if out["status_code"] != 404 {
		t.Errorf("status_code = %v", out["status_code"])
	}
}

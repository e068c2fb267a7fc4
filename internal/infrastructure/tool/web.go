package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	domaintool "github.com/aria-ai/aria/internal/domain/tool"
)

const (
	// DefaultFetchTimeout bounds one request.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxResponseSize caps the body at 10 MB.
	DefaultMaxResponseSize = 10 * 1024 * 1024

	fetchChunkSize = 8192
)

// WebTool fetches web content over HTTP GET with dual size enforcement:
// a Content-Length precheck and a streaming byte-count cap.
type WebTool struct {
	timeout   time.Duration
	maxSize   int64
	userAgent string
	client    *http.Client
	logger    *zap.Logger
}

var _ domaintool.Tool = (*WebTool)(nil)

// NewWebTool creates the web fetch tool.
func NewWebTool(timeout time.Duration, maxSize int64, logger *zap.Logger) *WebTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxResponseSize
	}
	return &WebTool{
		timeout:   timeout,
		maxSize:   maxSize,
		userAgent: "aria/0.2.0",
		client:    &http.Client{},
		logger:    logger,
	}
}

func (t *WebTool) Name() string { return "web_fetch" }

func (t *WebTool) Description() string {
	return "Fetch content from a URL using HTTP GET. Returns the response body, status code, and headers."
}

func (t *WebTool) Kind() domaintool.Kind { return domaintool.KindBuiltin }

func (t *WebTool) Definition() domaintool.Definition {
	return domaintool.Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Kind:        t.Kind(),
		Parameters: []domaintool.Parameter{
			{
				Name:        "url",
				Type:        "string",
				Description: "The URL to fetch",
				Required:    true,
			},
			{
				Name:        "headers",
				Type:        "object",
				Description: "Custom HTTP headers as key-value pairs (optional)",
			},
			{
				Name:        "timeout",
				Type:        "number",
				Description: "Request timeout in seconds (optional, overrides default)",
			},
		},
	}
}

// Execute fetches the URL. Status in [200,300) is success; anything
// else, including over-size bodies, is an error result.
func (t *WebTool) Execute(ctx context.Context, args map[string]any) *domaintool.Result {
	url, _ := args["url"].(string)

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return domaintool.ErrorResult(t.Name(), "URL must start with http:// or https://")
	}

	timeout := t.timeout
	if secs, ok := args["timeout"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return domaintool.ErrorResult(t.Name(), "Request failed: "+err.Error())
	}
	req.Header.Set("User-Agent", t.userAgent)
	if custom, ok := args["headers"].(map[string]any); ok {
		for k, v := range custom {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	t.logger.Info("Fetching URL", zap.String("url", url))

	resp, err := t.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return domaintool.ErrorResult(t.Name(), fmt.Sprintf("Request timed out after %v", timeout))
		}
		return domaintool.ErrorResult(t.Name(), "Request failed: "+err.Error())
	}
	defer resp.Body.Close()

	// Content-Length precheck before reading anything.
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > t.maxSize {
			return &domaintool.Result{
				ToolName: t.Name(),
				Status:   domaintool.StatusError,
				Error:    fmt.Sprintf("Response too large: %d bytes (max: %d)", n, t.maxSize),
				Metadata: map[string]any{
					"url":            url,
					"status_code":    resp.StatusCode,
					"content_length": n,
				},
			}
		}
	}

	// Streaming enforcement: read in chunks, abort past the cap.
	var body []byte
	buf := make([]byte, fetchChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if int64(len(body)) > t.maxSize {
			return &domaintool.Result{
				ToolName: t.Name(),
				Status:   domaintool.StatusError,
				Error:    fmt.Sprintf("Response exceeded max size of %d bytes", t.maxSize),
				Metadata: map[string]any{
					"url":         url,
					"status_code": resp.StatusCode,
				},
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return domaintool.ErrorResult(t.Name(), "Request failed: "+readErr.Error())
		}
	}

	content := string(body)
	if !utf8.Valid(body) {
		content = fmt.Sprintf("<binary content, %d bytes>", len(body))
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	finalURL := resp.Request.URL.String()

	output := map[string]any{
		"content":     content,
		"status_code": resp.StatusCode,
		"headers":     headers,
		"url":         finalURL,
	}
	metadata := map[string]any{
		"url":          url,
		"final_url":    finalURL,
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"size":         len(body),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domaintool.Result{
			ToolName: t.Name(),
			Status:   domaintool.StatusError,
			Output:   output,
			Error:    "HTTP " + resp.Status,
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

package llm

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultIdleTimeout is the per-read stall detector applied to every
// streamed response body.
const DefaultIdleTimeout = 60 * time.Second

var errIdleTimeout = fmt.Errorf("stream read idle timeout")

// TimedReader wraps an io.Reader and applies a per-Read deadline, so a
// stalled upstream cannot hang a stream forever.
type TimedReader struct {
	R       io.Reader
	Timeout time.Duration
}

func (t *TimedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.R.Read(p)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.Timeout):
		return 0, errIdleTimeout
	}
}

// IsIdleTimeout checks if an error is the per-read stall sentinel.
func IsIdleTimeout(err error) bool {
	return err != nil && strings.Contains(err.Error(), "stream read idle timeout")
}

// TruncateForLog truncates a string for safe logging.
func TruncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Emit sends a chunk unless the caller's context is already done.
// Adapters use it so an abandoned stream never leaks its goroutine.
func Emit(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// NewHTTPClient builds the streaming-friendly HTTP client adapters share:
// generous response-header timeout for slow first tokens, bounded dial
// and TLS handshake.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &http.Client{Transport: transport}
}

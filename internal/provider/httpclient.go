package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

// HTTPRequest describes one resilience-wrapped backend call.
type HTTPRequest struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

// Breaker state is keyed by backend host and shared across adapters and
// integrations targeting that host.
var (
	executorsMu sync.Mutex
	executors   = map[string]*resilience.Executor[[]byte]{}
)

func executorFor(rawURL string, retryCfg resilience.RetryConfig) *resilience.Executor[[]byte] {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	executorsMu.Lock()
	defer executorsMu.Unlock()
	if e, ok := executors[host]; ok {
		return e
	}
	breakerCfg := resilience.DefaultBreakerConfig(host)
	e := resilience.NewExecutor[[]byte](retryCfg, &breakerCfg)
	executors[host] = e
	return e
}

// DoJSON performs the request through the host's retry-and-breaker
// executor and returns the response body. HTTP status is mapped onto the
// resilience taxonomy: 401/403 become non-retryable AuthErrors, 429
// becomes a RateLimitError carrying the server's Retry-After, and 5xx is
// a plain transient error.
func DoJSON(ctx context.Context, client *http.Client, retryCfg resilience.RetryConfig, req HTTPRequest) ([]byte, error) {
	return executorFor(req.URL, retryCfg).Execute(ctx, func() ([]byte, error) {
		var bodyReader io.Reader
		if len(req.Body) > 0 {
			bodyReader = bytes.NewReader(req.Body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		if len(req.Body) > 0 {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &resilience.AuthError{
				Cause: fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL, resp.StatusCode, truncate(body)),
			}
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &resilience.RateLimitError{RetryAfter: resilience.RetryAfterFromResponse(resp)}
		default:
			return nil, fmt.Errorf("%s %s returned %d: %s", req.Method, req.URL, resp.StatusCode, truncate(body))
		}
	})
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

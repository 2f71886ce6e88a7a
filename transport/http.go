// Package transport implements the HTTP action-transport the engine drives
// actions through: one base URL, one http.Client, a circuit breaker and
// retry policy guarding every call, and redaction of the request/response
// headers and bodies recorded in each ActionResult.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/R3E-Network/exploration-engine/engine"
	"github.com/R3E-Network/exploration-engine/infrastructure/httputil"
	"github.com/R3E-Network/exploration-engine/infrastructure/logging"
	"github.com/R3E-Network/exploration-engine/infrastructure/redaction"
	"github.com/R3E-Network/exploration-engine/infrastructure/resilience"
)

const (
	maxResponseBytes = 4 << 20 // 4 MiB
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	TimeoutMS      int
	DefaultHeaders map[string]string
	Logger         *logging.Logger
	// HTTPClient, when set, is copied and given this Config's timeout
	// instead of building a bare http.Client from scratch — the hook an
	// exploration target behind mTLS or a custom proxy needs, since that
	// transport has to come from the caller rather than from
	// httputil.DefaultTransportWithMinTLS12.
	HTTPClient *http.Client
	// Breaker, when nil, defaults to resilience.DefaultConfig().
	Breaker *resilience.Config
	// Retry, when nil, defaults to resilience.DefaultRetryConfig().
	Retry *resilience.RetryConfig
}

// Client is the concrete engine.Transport implementation that drives
// actions against a real HTTP API, guarded by a circuit breaker and a retry
// policy on transient failures.
type Client struct {
	baseURL        string
	defaultHeaders map[string]string
	httpClient     *http.Client
	breaker        *resilience.CircuitBreaker
	retryCfg       resilience.RetryConfig
	logger         *logging.Logger
}

// NewClient constructs a Client. The base URL is used as-is apart from
// trimming trailing slashes (no scheme or host normalization), since
// exploration targets are frequently loopback or cluster-local addresses
// during development.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	breakerCfg := resilience.DefaultConfig()
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}
	retryCfg := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		defaultHeaders: cfg.DefaultHeaders,
		httpClient:     copyHTTPClientWithTimeout(cfg.HTTPClient, timeout),
		breaker:        resilience.New(breakerCfg),
		retryCfg:       retryCfg,
		logger:         logger,
	}
}

// copyHTTPClientWithTimeout returns base, shallow-copied with timeout
// applied, falling back to a client using
// httputil.DefaultTransportWithMinTLS12 when base is nil. The copy keeps
// NewClient safe to call with a shared *http.Client: the caller's instance
// is never mutated, and the exploration run's timeout always wins over
// whatever the caller's client had set.
func copyHTTPClientWithTimeout(base *http.Client, timeout time.Duration) *http.Client {
	if base == nil {
		return &http.Client{
			Timeout:   timeout,
			Transport: httputil.DefaultTransportWithMinTLS12(),
		}
	}
	copied := *base
	copied.Timeout = timeout
	return &copied
}

func (c *Client) Get(path string, headers map[string]string) *engine.ActionResult {
	return c.Request(http.MethodGet, path, headers, nil)
}

func (c *Client) Post(path string, body interface{}, headers map[string]string) *engine.ActionResult {
	return c.Request(http.MethodPost, path, headers, body)
}

func (c *Client) Put(path string, body interface{}, headers map[string]string) *engine.ActionResult {
	return c.Request(http.MethodPut, path, headers, body)
}

func (c *Client) Patch(path string, body interface{}, headers map[string]string) *engine.ActionResult {
	return c.Request(http.MethodPatch, path, headers, body)
}

func (c *Client) Delete(path string, headers map[string]string) *engine.ActionResult {
	return c.Request(http.MethodDelete, path, headers, nil)
}

// Request executes one action against the target, guarded by the circuit
// breaker and retry policy. A non-nil ActionResult is always returned:
// Success=false means the call never produced a response (circuit open,
// transport error, context cancellation); Success=true covers every HTTP
// status code including 4xx/5xx, since the round trip itself completed.
func (c *Client) Request(method, path string, headers map[string]string, body interface{}) *engine.ActionResult {
	start := time.Now()
	url := c.baseURL + path

	var reqBody []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &engine.ActionResult{
				Success:    false,
				Error:      fmt.Sprintf("marshal request body: %v", err),
				DurationMS: time.Since(start).Milliseconds(),
				Timestamp:  time.Now(),
			}
		}
		reqBody = encoded
	}

	mergedHeaders := make(map[string]string, len(c.defaultHeaders)+len(headers))
	for k, v := range c.defaultHeaders {
		mergedHeaders[k] = v
	}
	for k, v := range headers {
		mergedHeaders[k] = v
	}

	var resp *engine.HTTPResponse
	var callErr error

	retryErr := resilience.Retry(context.Background(), c.retryCfg, func() error {
		breakerErr := c.breaker.Execute(context.Background(), func() error {
			r, err := c.doOnce(method, url, mergedHeaders, reqBody)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if breakerErr != nil {
			callErr = breakerErr
			return breakerErr
		}
		callErr = nil
		return nil
	})
	if retryErr != nil {
		callErr = retryErr
	}

	duration := time.Since(start)
	c.logger.LogRequest(context.Background(), method, path, statusOrZero(resp), duration)

	if callErr != nil {
		return &engine.ActionResult{
			Success: false,
			Request: &engine.HTTPRequest{
				Method:  method,
				URL:     url,
				Headers: redaction.Headers(mergedHeaders),
				Body:    redaction.Bytes(reqBody),
			},
			Error:      callErr.Error(),
			DurationMS: duration.Milliseconds(),
			Timestamp:  time.Now(),
		}
	}

	return &engine.ActionResult{
		Success: true,
		Request: &engine.HTTPRequest{
			Method:  method,
			URL:     url,
			Headers: redaction.Headers(mergedHeaders),
			Body:    redaction.Bytes(reqBody),
		},
		Response:   resp,
		DurationMS: duration.Milliseconds(),
		Timestamp:  time.Now(),
	}
}

func (c *Client) doOnce(method, url string, headers map[string]string, body []byte) (*engine.HTTPResponse, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := httputil.ReadAllStrict(httpResp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	respHeaders := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		respHeaders[k] = httpResp.Header.Get(k)
	}

	return &engine.HTTPResponse{
		StatusCode: httpResp.StatusCode,
		Headers:    redaction.Headers(respHeaders),
		Body:       redaction.Bytes(respBody),
	}, nil
}

func statusOrZero(r *engine.HTTPResponse) int {
	if r == nil {
		return 0
	}
	return r.StatusCode
}

// Close releases the underlying transport's idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

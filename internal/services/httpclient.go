package services

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
)

// HTTPClient wraps the standard http.Client with retry logic for transient
// failures. Spawn calls bypass the wrapper's retry loop because they carry
// their own failure-class policy.
type HTTPClient struct {
	client      *http.Client
	retryConfig lib.RetryConfig
	logger      *lib.Logger
}

// NewHTTPClient creates an HTTP client with timeout and retry configuration
func NewHTTPClient(timeout time.Duration, retryConfig models.RetryConfig, logger *lib.Logger) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		retryConfig: lib.RetryConfig{
			MaxAttempts:      retryConfig.MaxAttempts,
			InitialBackoffMs: retryConfig.InitialBackoffMs,
			MaxBackoffMs:     retryConfig.MaxBackoffMs,
		},
		logger: logger,
	}
}

// DefaultHTTPClient creates an HTTP client with sensible defaults
func DefaultHTTPClient() *HTTPClient {
	return NewHTTPClient(
		60*time.Second,
		models.RetryConfig{
			MaxAttempts:      3,
			InitialBackoffMs: 1000,
			MaxBackoffMs:     30000,
		},
		lib.DefaultLogger,
	)
}

// Do executes an HTTP request with retry logic for transient errors.
// Non-transient HTTP errors return the response unconsumed so the caller can
// read the error body.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		// Body can only be read once; buffer it for retries
		var bodyBytes []byte
		if req.Body != nil {
			bodyBytes, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		startTime := time.Now()
		resp, lastErr = c.client.Do(req)
		duration := time.Since(startTime)

		lib.LogServiceCall(c.logger, req.URL.Host, req.URL.Path, req.Method)

		if lastErr == nil {
			lib.LogServiceResponse(c.logger, req.URL.Host, resp.StatusCode, duration)

			if resp.StatusCode >= 400 && lib.IsTransientHTTPStatus(resp.StatusCode) {
				statusErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)

				if attempt < c.retryConfig.MaxAttempts-1 {
					lib.LogRetry(c.logger, req.URL.String(), attempt, c.retryConfig.MaxAttempts, statusErr)
					_ = resp.Body.Close()
					time.Sleep(lib.CalculateBackoff(attempt, c.retryConfig.InitialBackoffMs, c.retryConfig.MaxBackoffMs))
					if bodyBytes != nil {
						req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
					}
					lastErr = statusErr
					continue
				}

				_ = resp.Body.Close()
				lastErr = statusErr
				break
			}

			return resp, nil
		}

		// Network error occurred
		if lib.IsNetworkError(lastErr) && attempt < c.retryConfig.MaxAttempts-1 {
			lib.LogRetry(c.logger, req.URL.String(), attempt, c.retryConfig.MaxAttempts, lastErr)
			time.Sleep(lib.CalculateBackoff(attempt, c.retryConfig.InitialBackoffMs, c.retryConfig.MaxBackoffMs))
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}
			continue
		}

		return nil, lastErr
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retryConfig.MaxAttempts, lastErr)
}

// Get performs an HTTP GET request with retry logic
func (c *HTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.Do(req)
}

// Download streams a URL's body into a writer, returning bytes written
func (c *HTTPClient) Download(url string, writer io.Writer) (int64, error) {
	resp, err := c.Get(url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	bytesWritten, err := io.Copy(writer, resp.Body)
	if err != nil {
		return bytesWritten, fmt.Errorf("failed to download: %w", err)
	}

	return bytesWritten, nil
}

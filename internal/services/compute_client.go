package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
)

// Error codes of the compute platform's typed error contract. Failure
// classification keys off these, never off message text.
const (
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeGPUUnavailable = "gpu_unavailable"
	ErrCodeNotConfigured  = "not_configured"
)

// APIError is a compute platform call failure that is neither a rate limit
// nor a GPU capacity problem
type APIError struct {
	Op         string // "spawn", "progress", "upload", "download", "list", "delete"
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("compute %s error: HTTP %d [%s]: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("compute %s error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("compute %s error: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// RateLimitError is returned when spawn retries are exhausted on rate limits
type RateLimitError struct {
	Function string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited spawning %q after %d attempts", e.Function, e.Attempts)
}

// GPUUnavailableError is returned when the platform has no capacity for the
// deployed GPU type. The GPU selection is fixed at deploy time, so this is
// never retried.
type GPUUnavailableError struct {
	Function string
	Message  string
}

func (e *GPUUnavailableError) Error() string {
	return fmt.Sprintf("gpu unavailable for %q: %s", e.Function, e.Message)
}

// FunctionHandle identifies a spawned remote call. It carries no completion
// channel: completion is only observable through progress polls.
type FunctionHandle struct {
	CallID    string    `json:"call_id"`
	Function  string    `json:"function"`
	SpawnedAt time.Time `json:"spawned_at"`
}

// VolumeEntry describes one file on the shared remote volume
type VolumeEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// spawnFailure is the decoded platform error for a failed spawn attempt
type spawnFailure struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *spawnFailure) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("HTTP %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// ComputeClient is the boundary to the remote compute platform: it spawns
// named functions (fire-and-poll, never fire-and-wait) and reads/writes the
// shared file volume.
type ComputeClient struct {
	config     models.ComputeConfig
	retry      models.RetryConfig
	httpClient *HTTPClient
	logger     *lib.Logger
	sleep      func(time.Duration) // swapped out in tests
}

// NewComputeClient creates a compute client. One explicitly-owned instance
// is constructed at startup and injected into the orchestrators.
func NewComputeClient(config models.ComputeConfig, retry models.RetryConfig, httpClient *HTTPClient, logger *lib.Logger) *ComputeClient {
	return &ComputeClient{
		config:     config,
		retry:      retry,
		httpClient: httpClient,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// IsConfigured reports whether platform credentials are present
func (c *ComputeClient) IsConfigured() bool {
	return c.config.BaseURL != "" && c.config.Token != ""
}

// CallFunction spawns a named remote function and returns its handle
// immediately. Failure handling is per class:
//   - rate limited: sleep 2^attempt backoff, retry; exhaustion -> RateLimitError
//   - gpu unavailable: GPUUnavailableError after exactly one attempt
//   - anything else: same backoff; exhaustion -> APIError wrapping the last failure
func (c *ComputeClient) CallFunction(name string, args map[string]any, maxRetries int) (*FunctionHandle, error) {
	if !c.IsConfigured() {
		return nil, &APIError{Op: "spawn", Code: ErrCodeNotConfigured, Message: "compute platform not configured"}
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastFailure *spawnFailure

	for attempt := 0; attempt < maxRetries; attempt++ {
		handle, failure := c.spawn(name, args)
		if failure == nil {
			lib.LogSpawn(c.logger, name, handle.CallID, fmt.Sprint(args["job_id"]))
			return handle, nil
		}

		lastFailure = failure

		if failure.Code == ErrCodeGPUUnavailable {
			c.logger.Error("GPU unavailable, not retrying", "function", name, "message", failure.Message)
			return nil, &GPUUnavailableError{Function: name, Message: failure.Message}
		}

		if attempt < maxRetries-1 {
			lib.LogRetry(c.logger, "spawn "+name, attempt, maxRetries, failure)
			c.sleep(lib.CalculateBackoff(attempt, c.retry.InitialBackoffMs, c.retry.MaxBackoffMs))
			continue
		}
	}

	if lastFailure.Code == ErrCodeRateLimited || lastFailure.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Function: name, Attempts: maxRetries}
	}
	return nil, &APIError{
		Op:         "spawn",
		StatusCode: lastFailure.StatusCode,
		Code:       lastFailure.Code,
		Message:    lastFailure.Message,
		Err:        lastFailure.Err,
	}
}

// spawn performs one spawn attempt. It bypasses the HTTP wrapper's generic
// retry loop because CallFunction owns the retry policy.
func (c *ComputeClient) spawn(name string, args map[string]any) (*FunctionHandle, *spawnFailure) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, &spawnFailure{Err: fmt.Errorf("failed to marshal args: %w", err)}
	}

	req, err := http.NewRequest("POST", c.endpoint("/v1/functions/"+name+"/calls"), bytes.NewReader(body))
	if err != nil {
		return nil, &spawnFailure{Err: fmt.Errorf("failed to create spawn request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.client.Do(req)
	if err != nil {
		return nil, &spawnFailure{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		failure := &spawnFailure{StatusCode: resp.StatusCode}
		failure.Code, failure.Message = decodePlatformError(resp)
		if failure.Code == "" && resp.StatusCode == http.StatusTooManyRequests {
			failure.Code = ErrCodeRateLimited
		}
		return nil, failure
	}

	var handle FunctionHandle
	if err := json.NewDecoder(resp.Body).Decode(&handle); err != nil {
		return nil, &spawnFailure{Err: fmt.Errorf("failed to decode spawn response: %w", err)}
	}
	handle.Function = name
	if handle.SpawnedAt.IsZero() {
		handle.SpawnedAt = time.Now()
	}
	return &handle, nil
}

// GetProgress reads the job-scoped progress document from the shared volume.
// A missing file is the normal "not started yet" state and maps to an
// initializing snapshot; any other failure returns an error so callers can
// distinguish "not started" from "unknown/degraded".
func (c *ComputeClient) GetProgress(jobID string) (*models.ProgressSnapshot, error) {
	if !c.IsConfigured() {
		return models.InitializingSnapshot(), nil
	}

	ident, err := models.ParseJobID(jobID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("GET", c.volumeFileURL(ident.ProgressPath()), nil)
	if err != nil {
		return nil, &APIError{Op: "progress", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Op: "progress", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return models.InitializingSnapshot(), nil
	}
	if resp.StatusCode >= 400 {
		code, message := decodePlatformError(resp)
		return nil, &APIError{Op: "progress", StatusCode: resp.StatusCode, Code: code, Message: message}
	}

	var snapshot models.ProgressSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, &APIError{Op: "progress", Err: fmt.Errorf("failed to parse progress document: %w", err)}
	}
	return &snapshot, nil
}

// UploadFile streams a local file to the shared volume
func (c *ComputeClient) UploadFile(localPath string, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	return c.UploadBytes(f, remotePath)
}

// UploadBytes streams reader content to the shared volume. The payload is
// never buffered in memory, so large uploads don't stall on serialization.
func (c *ComputeClient) UploadBytes(r io.Reader, remotePath string) error {
	if !c.IsConfigured() {
		return &APIError{Op: "upload", Code: ErrCodeNotConfigured, Message: "compute platform not configured"}
	}

	req, err := http.NewRequest("PUT", c.volumeFileURL(remotePath), r)
	if err != nil {
		return &APIError{Op: "upload", Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.httpClient.client.Do(req)
	if err != nil {
		return &APIError{Op: "upload", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		code, message := decodePlatformError(resp)
		return &APIError{Op: "upload", StatusCode: resp.StatusCode, Code: code, Message: message}
	}
	return nil
}

// DownloadFile fetches a volume file into a local path
func (c *ComputeClient) DownloadFile(remotePath string, localPath string) error {
	if !c.IsConfigured() {
		return &APIError{Op: "download", Code: ErrCodeNotConfigured, Message: "compute platform not configured"}
	}

	req, err := http.NewRequest("GET", c.volumeFileURL(remotePath), nil)
	if err != nil {
		return &APIError{Op: "download", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Op: "download", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		code, message := decodePlatformError(resp)
		return &APIError{Op: "download", StatusCode: resp.StatusCode, Code: code, Message: message}
	}

	if err := lib.EnsureDir(filepath.Dir(localPath)); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	dest, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer func() { _ = dest.Close() }()

	if _, err := io.Copy(dest, resp.Body); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

// ListFiles lists volume entries under a prefix. Degrades to an empty list
// when the platform is not configured.
func (c *ComputeClient) ListFiles(prefix string) ([]VolumeEntry, error) {
	if !c.IsConfigured() {
		return []VolumeEntry{}, nil
	}

	req, err := http.NewRequest("GET", c.endpoint("/v1/volume/list?prefix="+url.QueryEscape(prefix)), nil)
	if err != nil {
		return nil, &APIError{Op: "list", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Op: "list", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return []VolumeEntry{}, nil
	}
	if resp.StatusCode >= 400 {
		code, message := decodePlatformError(resp)
		return nil, &APIError{Op: "list", StatusCode: resp.StatusCode, Code: code, Message: message}
	}

	var result struct {
		Files []VolumeEntry `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &APIError{Op: "list", Err: fmt.Errorf("failed to parse list response: %w", err)}
	}
	return result.Files, nil
}

// DeleteJobData removes everything a root id owns on the volume
func (c *ComputeClient) DeleteJobData(rootID string) error {
	if !c.IsConfigured() {
		return &APIError{Op: "delete", Code: ErrCodeNotConfigured, Message: "compute platform not configured"}
	}

	ident, err := models.NewJobIdentity(rootID, models.StageUpload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("DELETE", c.endpoint("/v1/volume/prefix?prefix="+url.QueryEscape(ident.DataPrefix())), nil)
	if err != nil {
		return &APIError{Op: "delete", Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Op: "delete", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		code, message := decodePlatformError(resp)
		return &APIError{Op: "delete", StatusCode: resp.StatusCode, Code: code, Message: message}
	}
	return nil
}

func (c *ComputeClient) endpoint(path string) string {
	return c.config.BaseURL + path
}

func (c *ComputeClient) volumeFileURL(remotePath string) string {
	return c.config.BaseURL + "/v1/volume/files/" + remotePath
}

func (c *ComputeClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
}

// decodePlatformError reads the platform's typed error body {code, message}.
// A body that isn't the typed contract yields an empty code and the raw text.
func decodePlatformError(resp *http.Response) (code string, message string) {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(bodyBytes, &payload); err == nil && payload.Code != "" {
		return payload.Code, payload.Message
	}
	return "", string(bodyBytes)
}

// IsNotConfigured reports whether err is the explicit not-configured failure
func IsNotConfigured(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeNotConfigured
}

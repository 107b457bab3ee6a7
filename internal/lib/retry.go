package lib

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig holds retry strategy parameters
type RetryConfig struct {
	MaxAttempts      int
	InitialBackoffMs int64
	MaxBackoffMs     int64
}

// CalculateBackoff computes exponential backoff duration
// Formula: min(initialBackoff * 2^attempt, maxBackoff)
func CalculateBackoff(attempt int, initialBackoffMs int64, maxBackoffMs int64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoffMs := float64(initialBackoffMs) * math.Pow(2, float64(attempt))

	if backoffMs > float64(maxBackoffMs) {
		backoffMs = float64(maxBackoffMs)
	}

	return time.Duration(backoffMs) * time.Millisecond
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func() error

// ExecuteWithRetry executes an operation with exponential backoff retry logic
// Returns nil if the operation succeeds, or the last error once retries are
// exhausted or shouldRetry rejects the error.
func ExecuteWithRetry(operation RetryableOperation, config RetryConfig, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		// Last attempt - don't wait
		if attempt == config.MaxAttempts-1 {
			break
		}

		time.Sleep(CalculateBackoff(attempt, config.InitialBackoffMs, config.MaxBackoffMs))
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// IsTransientHTTPStatus classifies HTTP status codes for retry logic
func IsTransientHTTPStatus(status int) bool {
	// 5xx server errors are transient (service might recover)
	if status >= 500 && status < 600 {
		return true
	}
	// 408 Request Timeout, 429 Too Many Requests are transient
	if status == 408 || status == 429 {
		return true
	}
	return false
}

// IsNetworkError checks if an error is likely a network-related issue.
// These are typically transient and should be retried.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	networkErrors := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"deadline exceeded",
		"eof",
	}

	for _, pattern := range networkErrors {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

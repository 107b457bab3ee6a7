package lib

import (
	"fmt"
	"strings"
)

// PrismError represents a user-friendly error with context and guidance
type PrismError struct {
	Category    ErrorCategory
	Message     string   // Short description of what went wrong
	Cause       error    // Underlying error
	Guidance    []string // What the user can do to fix it
	HTTPStatus  int      // HTTP status code if applicable
	IsRetryable bool     // Can this error be automatically retried?
}

// ErrorCategory classifies errors for better UX
type ErrorCategory string

const (
	CategoryNetwork       ErrorCategory = "network"
	CategoryFileSystem    ErrorCategory = "filesystem"
	CategoryValidation    ErrorCategory = "validation"
	CategoryCompute       ErrorCategory = "compute"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryState         ErrorCategory = "state"
)

// Error implements the error interface
func (e *PrismError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] ", strings.ToUpper(string(e.Category))))
	sb.WriteString(e.Message)

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if e.HTTPStatus > 0 {
		sb.WriteString(fmt.Sprintf(" (HTTP %d)", e.HTTPStatus))
	}

	return sb.String()
}

// UserMessage returns a formatted message suitable for displaying to end users
func (e *PrismError) UserMessage() string {
	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(e.Message)
	sb.WriteString("\n\n")

	if len(e.Guidance) > 0 {
		sb.WriteString("How to fix:\n")
		for i, guide := range e.Guidance {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, guide))
		}
	}

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", e.Cause))
	}

	return sb.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility
func (e *PrismError) Unwrap() error {
	return e.Cause
}

// ErrComputeUnreachable creates an error for compute platform connectivity issues
func ErrComputeUnreachable(url string, cause error) *PrismError {
	return &PrismError{
		Category: CategoryNetwork,
		Message:  fmt.Sprintf("Cannot reach compute platform at %s", url),
		Cause:    cause,
		Guidance: []string{
			"Check your network connection",
			fmt.Sprintf("Verify the base URL is correct: %s", url),
			"Check the platform status page for outages",
		},
		IsRetryable: true,
	}
}

// ErrNotConfigured creates an error for missing compute credentials
func ErrNotConfigured() *PrismError {
	return &PrismError{
		Category: CategoryConfiguration,
		Message:  "Compute platform is not configured",
		Guidance: []string{
			"Set compute.base_url and compute.token in prism.yaml",
			"Or export PRISM_COMPUTE_BASE_URL and PRISM_COMPUTE_TOKEN",
		},
		IsRetryable: false,
	}
}

// ErrInvalidConfig creates an error for configuration validation failures
func ErrInvalidConfig(field string, reason string) *PrismError {
	return &PrismError{
		Category: CategoryConfiguration,
		Message:  fmt.Sprintf("Invalid configuration: %s", reason),
		Guidance: []string{
			fmt.Sprintf("Check the '%s' field in your config file", field),
			"Run 'prism config' to see the resolved configuration",
		},
		IsRetryable: false,
	}
}

// ErrJobNotFound creates an error for missing job state
func ErrJobNotFound(jobID string) *PrismError {
	return &PrismError{
		Category: CategoryState,
		Message:  fmt.Sprintf("Job '%s' not found", jobID),
		Guidance: []string{
			"Check the job ID is correct",
			"Use 'prism job list' to see all known jobs",
			"The job record may have been cleaned up",
		},
		IsRetryable: false,
	}
}

// ErrCorruptedJobState creates an error for unreadable job records
func ErrCorruptedJobState(jobID string, cause error) *PrismError {
	return &PrismError{
		Category: CategoryState,
		Message:  fmt.Sprintf("Job record for '%s' is corrupted", jobID),
		Cause:    cause,
		Guidance: []string{
			"Check jobs/<job-id>/state.json for syntax errors",
			"You may need to delete this record and retry the stage",
		},
		IsRetryable: false,
	}
}

// ErrStageNotComplete creates an error for premature result assembly
func ErrStageNotComplete(jobID string, status string) *PrismError {
	return &PrismError{
		Category: CategoryValidation,
		Message:  fmt.Sprintf("Job '%s' has status %q, results require status complete", jobID, status),
		Guidance: []string{
			"Wait for the stage to finish",
			fmt.Sprintf("Check progress with 'prism pipeline status %s'", jobID),
		},
		IsRetryable: false,
	}
}

// WrapError wraps a standard error with PrismError context
func WrapError(category ErrorCategory, message string, cause error, guidance ...string) *PrismError {
	return &PrismError{
		Category:    category,
		Message:     message,
		Cause:       cause,
		Guidance:    guidance,
		IsRetryable: IsNetworkError(cause),
	}
}

package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryStorage       ErrorCategory = "storage"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryStructural    ErrorCategory = "structural"
	ErrorCategoryUpstream      ErrorCategory = "upstream"
)

// Sentinel errors reachable through errors.Is on a wrapped ServiceError
var (
	ErrBrowserLaunch                = errors.New("browser could not be launched")
	ErrNoCatalogAvailable           = errors.New("no catalog available")
	ErrAllPlatformsFailed           = errors.New("every platform scrape failed")
	ErrNotALotteryPage              = errors.New("not a lottery page")
	ErrRequiredFieldMissing         = errors.New("required field missing")
	ErrSubmitControlNotFound        = errors.New("submit control not found")
	ErrAborted                      = errors.New("aborted")
	ErrPreferenceServiceUnavailable = errors.New("preference service unavailable")
	ErrUserNotFound                 = errors.New("user not found")
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// WrapError wraps an existing error with service error context
func WrapError(err error, category ErrorCategory, code, serviceName, operation string, retryable bool) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		serviceErr.ServiceName = serviceName
		serviceErr.Operation = operation
		return serviceErr
	}

	return NewServiceError(category, code, err.Error(), serviceName, operation, retryable, err)
}

// IsRetryableError reports whether a caller may reasonably try again later.
// Nothing in the pipeline retries automatically; this only informs API responses.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Retryable
	}

	errorMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "service unavailable", "too many requests",
		"deadline exceeded",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errorMsg, pattern) {
			return true
		}
	}
	return false
}

// Diagnostic converts an error into the short string stored on results and
// summaries. Internals (causes, stack-ish chains) are not exposed.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Message
	}
	for _, sentinel := range []error{ErrNotALotteryPage, ErrSubmitControlNotFound, ErrRequiredFieldMissing, ErrBrowserLaunch} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if errors.Is(err, ErrAborted) {
		return "aborted: timed out waiting for page"
	}
	return "unexpected automation failure"
}

// BuildBatchErrorSummary creates a one-line summary for a batch of attempts
func BuildBatchErrorSummary(successCount, totalErrorCount int, sampleDiagnostics []string) string {
	var summaryBuilder strings.Builder
	summaryBuilder.WriteString(fmt.Sprintf("batch completed with %d successes and %d failures", successCount, totalErrorCount))

	sampleSize := len(sampleDiagnostics)
	if sampleSize > 3 {
		sampleSize = 3
	}
	for i := 0; i < sampleSize; i++ {
		summaryBuilder.WriteString("; ")
		summaryBuilder.WriteString(sampleDiagnostics[i])
	}
	if totalErrorCount > sampleSize {
		summaryBuilder.WriteString(fmt.Sprintf("; and %d additional errors", totalErrorCount-sampleSize))
	}
	return summaryBuilder.String()
}

package gateway

import (
	"errors"
	"fmt"
)

// Category is the normalized upstream failure taxonomy.
type Category string

const (
	// CategoryTimeout: the registry did not answer within the read timeout.
	CategoryTimeout Category = "timeout"
	// CategoryProviderOutage: connection refused/reset or a 5xx.
	CategoryProviderOutage Category = "provider_outage"
	CategoryBadRequest     Category = "bad_request"
	CategoryNotFound       Category = "not_found"
	CategoryRateLimited    Category = "rate_limited"
	CategoryBadData        Category = "bad_data"
	CategoryInternal       Category = "internal"
)

// ErrCircuitOpen is returned by the breaker stage when no call was attempted.
var ErrCircuitOpen = errors.New("upstream circuit open")

// UpstreamError wraps registry failures with a normalized category.
type UpstreamError struct {
	Category   Category
	Status     int
	Message    string
	Underlying error
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("upstream [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("upstream [%s]: %s", e.Category, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Underlying
}

// NewUpstreamError sets Retryable from the category.
func NewUpstreamError(category Category, status int, message string, underlying error) *UpstreamError {
	return &UpstreamError{
		Category:   category,
		Status:     status,
		Message:    message,
		Underlying: underlying,
		Retryable: category == CategoryTimeout ||
			category == CategoryProviderOutage ||
			category == CategoryRateLimited,
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}

// IsTransport reports whether err says something about upstream health and
// therefore counts toward the breaker.
func IsTransport(err error) bool {
	return IsRetryable(err)
}

// CategoryOf extracts the category, defaulting to internal.
func CategoryOf(err error) Category {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Category
	}
	return CategoryInternal
}

// classifyStatus maps a non-2xx HTTP status. 400 and 404 are terminal; 408,
// 429 and 5xx are retryable.
func classifyStatus(status int) Category {
	switch {
	case status == 408:
		return CategoryTimeout
	case status == 429:
		return CategoryRateLimited
	case status == 404:
		return CategoryNotFound
	case status >= 500:
		return CategoryProviderOutage
	case status >= 400:
		return CategoryBadRequest
	default:
		return CategoryBadData
	}
}

package service

import (
	"errors"
	"fmt"
)

// ApiErrorKind classifies provider errors for retry and reporting.
type ApiErrorKind int

const (
	ErrKindAuthentication ApiErrorKind = iota
	ErrKindRateLimited
	ErrKindInvalidRequest
	ErrKindServerError
	ErrKindCancelled
	ErrKindResponseParsing
	ErrKindNoChoices
	ErrKindRequestBlocked
	ErrKindNetwork
	ErrKindTimeout
	ErrKindUnknown
)

// String returns a stable label for the kind.
func (k ApiErrorKind) String() string {
	switch k {
	case ErrKindAuthentication:
		return "authentication"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindInvalidRequest:
		return "invalid_request"
	case ErrKindServerError:
		return "server_error"
	case ErrKindCancelled:
		return "cancelled"
	case ErrKindResponseParsing:
		return "response_parsing"
	case ErrKindNoChoices:
		return "no_choices"
	case ErrKindRequestBlocked:
		return "request_blocked"
	case ErrKindNetwork:
		return "network"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// IsRetryable reports whether the kind should be retried: network
// failures, timeouts, 5xx server errors, and rate limits. Auth, invalid-request,
// cancellation, and parsing failures surface immediately.
func (k ApiErrorKind) IsRetryable() bool {
	switch k {
	case ErrKindNetwork, ErrKindServerError, ErrKindRateLimited, ErrKindTimeout:
		return true
	default:
		return false
	}
}

// ApiError is a classified provider failure.
type ApiError struct {
	Kind     ApiErrorKind
	Status   int // HTTP status if applicable, 0 otherwise
	Provider string
	Message  string
	Cause    error

	// RetryAfterSeconds carries a server-provided delay on rate limits.
	RetryAfterSeconds int
}

func (e *ApiError) Error() string {
	switch {
	case e.Status != 0 && e.Cause != nil:
		return fmt.Sprintf("%s: [%s %d] %s: %v", e.Provider, e.Kind, e.Status, e.Message, e.Cause)
	case e.Status != 0:
		return fmt.Sprintf("%s: [%s %d] %s", e.Provider, e.Kind, e.Status, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: [%s] %s: %v", e.Provider, e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Kind, e.Message)
	}
}

func (e *ApiError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error should be retried.
func (e *ApiError) IsRetryable() bool {
	return e.Kind.IsRetryable()
}

// NewCancelledError creates a cancellation ApiError for a provider.
func NewCancelledError(provider string) *ApiError {
	return &ApiError{Kind: ErrKindCancelled, Provider: provider, Message: "request cancelled"}
}

// MapHTTPStatus classifies an HTTP error status:
// 401/403 → authentication, 408 → timeout, 429 → rate limited,
// other 4xx → invalid request, 5xx → server error.
func MapHTTPStatus(status int) ApiErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrKindAuthentication
	case status == 408:
		return ErrKindTimeout
	case status == 429:
		return ErrKindRateLimited
	case status >= 400 && status < 500:
		return ErrKindInvalidRequest
	case status >= 500 && status < 600:
		return ErrKindServerError
	default:
		return ErrKindUnknown
	}
}

// IsCancelled reports whether err is a provider cancellation.
func IsCancelled(err error) bool {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == ErrKindCancelled
	}
	return false
}

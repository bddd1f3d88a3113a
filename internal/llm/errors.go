package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for gateway operations.
var (
	// ErrProviderNotFound indicates the requested provider is not registered.
	ErrProviderNotFound = errors.New("provider not registered")

	// ErrInvalidAPIKey indicates the API key is invalid or expired.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrModelUnavailable indicates a specific model is unavailable.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrProviderError indicates a general provider error.
	ErrProviderError = errors.New("provider error")
)

// GatewayError represents a classified error from an LLM provider call.
type GatewayError struct {
	// Original error from the provider
	Err error

	// HTTP status code (if applicable)
	StatusCode int

	// Provider name the call went to
	Provider string

	// Model that was being used
	Model string

	// Error category (rate_limit, invalid_key, provider_error, ...)
	Category string

	// Whether retrying the same provider/model may succeed
	Retryable bool

	// Whether this error should trigger fallback to another provider
	ShouldFallback bool

	// Short human-readable summary
	Message string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown gateway error"
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Classify analyzes an error from a provider call and returns a classified
// GatewayError. Status codes take precedence; 400s and unknown codes fall
// through to message-pattern classification.
func Classify(err error, provider, model string, statusCode int) *GatewayError {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	gwErr := &GatewayError{
		Err:        err,
		StatusCode: statusCode,
		Provider:   provider,
		Model:      model,
	}

	switch statusCode {
	case http.StatusTooManyRequests: // 429
		gwErr.Category = "rate_limit"
		gwErr.Message = "rate limit exceeded"
		gwErr.Retryable = true
		gwErr.ShouldFallback = true

	case http.StatusPaymentRequired: // 402
		gwErr.Category = "quota_exceeded"
		gwErr.Message = "payment required or quota exhausted"
		gwErr.Retryable = false
		gwErr.ShouldFallback = true

	case http.StatusServiceUnavailable: // 503
		gwErr.Err = ErrModelUnavailable
		gwErr.Category = "provider_error"
		gwErr.Message = "model temporarily unavailable"
		gwErr.Retryable = true
		gwErr.ShouldFallback = true

	case http.StatusUnauthorized: // 401
		gwErr.Err = ErrInvalidAPIKey
		gwErr.Category = "invalid_key"
		gwErr.Message = "invalid API key"
		gwErr.Retryable = false
		// A bad key for one provider says nothing about the fallback's key.
		gwErr.ShouldFallback = true

	case http.StatusBadGateway, http.StatusGatewayTimeout: // 502, 504
		gwErr.Err = ErrProviderError
		gwErr.Category = "provider_error"
		gwErr.Message = "provider backend error"
		gwErr.Retryable = true
		gwErr.ShouldFallback = true

	case http.StatusBadRequest: // 400 needs further classification by message
		classifyByMessage(gwErr, errStr)

	default:
		classifyByMessage(gwErr, errStr)
	}

	return gwErr
}

// classifyByMessage analyzes error message content for known patterns.
func classifyByMessage(gwErr *GatewayError, errStr string) {
	switch {
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "ratelimit"):
		gwErr.Category = "rate_limit"
		gwErr.Message = "rate limit exceeded"
		gwErr.Retryable = true
		gwErr.ShouldFallback = true

	case strings.Contains(errStr, "overloaded") || strings.Contains(errStr, "capacity"):
		gwErr.Err = ErrModelUnavailable
		gwErr.Category = "provider_error"
		gwErr.Message = "model is overloaded"
		gwErr.Retryable = true
		gwErr.ShouldFallback = true

	case strings.Contains(errStr, "model not found") || strings.Contains(errStr, "invalid model"):
		gwErr.Err = ErrModelUnavailable
		gwErr.Category = "model_unsupported"
		gwErr.Message = "the specified model is not available"
		gwErr.Retryable = false
		gwErr.ShouldFallback = true

	case strings.Contains(errStr, "invalid api key") || strings.Contains(errStr, "authentication"):
		gwErr.Err = ErrInvalidAPIKey
		gwErr.Category = "invalid_key"
		gwErr.Message = "invalid API key"
		gwErr.Retryable = false
		gwErr.ShouldFallback = true

	case strings.Contains(errStr, "context") && strings.Contains(errStr, "length"):
		gwErr.Err = ErrProviderError
		gwErr.Category = "content_too_long"
		gwErr.Message = "prompt is too long for the model"
		gwErr.Retryable = false
		// Content problem, not a provider problem.
		gwErr.ShouldFallback = false

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		gwErr.Err = ErrProviderError
		gwErr.Category = "timeout"
		gwErr.Message = "request timed out"
		gwErr.Retryable = true
		gwErr.ShouldFallback = true

	default:
		gwErr.Err = ErrProviderError
		gwErr.Category = "unknown"
		gwErr.Message = fmt.Sprintf("provider error: %s", errStr)
		gwErr.Retryable = false
		gwErr.ShouldFallback = true
	}
}

// WrapError wraps a raw error into a GatewayError with classification,
// passing an already classified error through unchanged.
func WrapError(err error, provider, model string) *GatewayError {
	if err == nil {
		return nil
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	return Classify(err, provider, model, extractStatusCode(err.Error()))
}

// extractStatusCode attempts to extract an HTTP status code from an error
// message. Common patterns: "status 429", "API error (status 503)".
func extractStatusCode(errMsg string) int {
	patterns := []struct {
		needle string
		code   int
	}{
		{"status 429", http.StatusTooManyRequests},
		{"status 402", http.StatusPaymentRequired},
		{"status 401", http.StatusUnauthorized},
		{"status 503", http.StatusServiceUnavailable},
		{"status 502", http.StatusBadGateway},
		{"status 504", http.StatusGatewayTimeout},
		{"status 500", http.StatusInternalServerError},
		{"429", http.StatusTooManyRequests},
		{"503", http.StatusServiceUnavailable},
	}

	errLower := strings.ToLower(errMsg)
	for _, p := range patterns {
		if strings.Contains(errLower, p.needle) {
			return p.code
		}
	}

	return 0
}

// IsRetryable returns true if the error is retryable on the same provider.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return false
}

// ShouldFallback returns true if the error should trigger provider fallback.
func ShouldFallback(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.ShouldFallback
	}
	// Unclassified errors get one fallback chance.
	return true
}

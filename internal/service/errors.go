package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrInvalidInput is returned for a missing buyer id or rejected criteria.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBuyerNotFound is returned when the buyer does not exist.
	ErrBuyerNotFound = errors.New("buyer not found")

	// ErrRankingUnavailable means the oracle could not be reached or timed out.
	ErrRankingUnavailable = errors.New("ranking unavailable")
	// ErrRateLimited means the oracle refused the call with a 429-equivalent.
	ErrRateLimited = errors.New("ranking rate limited")
	// ErrQuotaExceeded means the oracle account is out of quota or billing.
	ErrQuotaExceeded = errors.New("ranking quota exceeded")

	// ErrPersistence wraps store failures during reconciliation.
	ErrPersistence = errors.New("persistence failure")
)

// OracleError carries the upstream failure kind of a ranking call.
type OracleError struct {
	Kind       error
	StatusCode int
	Provider   string
	Err        error
}

func (e *OracleError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// Is matches the kind sentinel, so errors.Is(err, ErrRateLimited) works.
func (e *OracleError) Is(target error) bool {
	return e.Kind == target
}

// IsRetryable reports whether a caller may safely retry the whole run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRankingUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrPersistence)
}

// classifyHTTPStatus maps an OpenAI-compatible error response to a kind.
func classifyHTTPStatus(status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusTooManyRequests && strings.Contains(lower, "insufficient_quota"):
		return ErrQuotaExceeded
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusPaymentRequired:
		return ErrQuotaExceeded
	default:
		return ErrRankingUnavailable
	}
}

// classifyGeminiError maps a genai failure to a kind.
func classifyGeminiError(err error) (kind error, status int) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return ErrRankingUnavailable, 0
		}
		apiErr = *apiErrPtr
	}
	message := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusPaymentRequired:
		return ErrQuotaExceeded, apiErr.Code
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		if strings.Contains(message, "billing") {
			return ErrQuotaExceeded, apiErr.Code
		}
		return ErrRateLimited, apiErr.Code
	default:
		return ErrRankingUnavailable, apiErr.Code
	}
}

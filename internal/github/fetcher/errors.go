package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

// ErrRetriesExhausted is returned when a request keeps failing after every retry.
var ErrRetriesExhausted = errors.New("github request retries exhausted")

// ErrorKind categorizes GitHub API failures by how the caller should react.
type ErrorKind string

const (
	// KindTransient covers network errors, timeouts and server errors.
	KindTransient ErrorKind = "transient"
	// KindRateLimit covers primary and secondary rate limits.
	KindRateLimit ErrorKind = "rate_limit"
	// KindNotFound means the repository does not exist or is not visible.
	KindNotFound ErrorKind = "not_found"
	// KindPermanent covers every other client error.
	KindPermanent ErrorKind = "permanent"
)

// APIError is a classified GitHub API failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	ResetAt    time.Time
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("github %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("github %s error: %v", e.Kind, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimit
}

// IsNotFound reports whether err is a missing repository.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}

// classifyError maps a go-github error and its response onto an APIError.
func classifyError(resp *github.Response, err error) *APIError {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &APIError{Kind: KindRateLimit, StatusCode: status, ResetAt: rateErr.Rate.Reset.Time, Err: err}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		apiErr := &APIError{Kind: KindRateLimit, StatusCode: status, Err: err}
		if abuseErr.RetryAfter != nil {
			apiErr.RetryAfter = *abuseErr.RetryAfter
		}

		return apiErr
	}

	if status == 0 {
		return &APIError{Kind: KindTransient, Err: err}
	}

	if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 &&
		(status == http.StatusForbidden || status == http.StatusTooManyRequests) {
		return &APIError{Kind: KindRateLimit, StatusCode: status, RetryAfter: retryAfter, Err: err}
	}

	if (status == http.StatusForbidden || status == http.StatusTooManyRequests) &&
		resp.Header.Get(headerRateRemaining) == "0" {
		return &APIError{Kind: KindRateLimit, StatusCode: status, ResetAt: resp.Rate.Reset.Time, Err: err}
	}

	switch {
	case status == http.StatusNotFound:
		return &APIError{Kind: KindNotFound, StatusCode: status, Err: err}
	case status == http.StatusTooManyRequests:
		return &APIError{Kind: KindRateLimit, StatusCode: status, Err: err}
	case status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
		return &APIError{Kind: KindTransient, StatusCode: status, Err: err}
	default:
		return &APIError{Kind: KindPermanent, StatusCode: status, Err: err}
	}
}

// isAttemptTimeout reports whether err came from the per-request deadline rather than the caller.
func isAttemptTimeout(parent context.Context, err error) bool {
	return parent.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

package review

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"PaperTriage/internal/domain"
)

var (
	// ErrMalformed marks a response that does not conform to the prompt version's schema.
	ErrMalformed = errors.New("malformed reviewer response")
	// ErrMisconfigured marks a backend that cannot be called at all (missing key, endpoint).
	ErrMisconfigured = errors.New("reviewer misconfigured")
	// ErrInvalidInput marks a publication that cannot be reviewed.
	ErrInvalidInput = errors.New("publication cannot be reviewed")
)

// StatusError is a non-2xx answer from a reviewer backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Classify maps an adapter error to its failure kind.
func Classify(err error) domain.FailureKind {
	var status *StatusError
	switch {
	case errors.Is(err, ErrMisconfigured):
		return domain.FailureMisconfigured
	case errors.Is(err, ErrInvalidInput):
		return domain.FailureInvalidInput
	case errors.Is(err, ErrMalformed):
		return domain.FailureMalformed
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, context.Canceled):
		return domain.FailureCanceled
	case errors.As(err, &status):
		switch {
		case status.Code == http.StatusTooManyRequests:
			return domain.FailureRateLimited
		case status.Code == http.StatusUnauthorized || status.Code == http.StatusForbidden:
			return domain.FailureMisconfigured
		}
		return domain.FailureTransport
	default:
		return domain.FailureTransport
	}
}

// Retryable reports whether another attempt could succeed.
func Retryable(err error) bool {
	switch Classify(err) {
	case domain.FailureMisconfigured, domain.FailureInvalidInput, domain.FailureCanceled:
		return false
	case domain.FailureTransport:
		var status *StatusError
		if errors.As(err, &status) {
			return status.Code >= http.StatusInternalServerError
		}
		return true
	default:
		return true
	}
}

package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Message fragments that mark a transient failure when the raiser did not
// classify the error itself. Matched case-insensitively against Error().
var (
	networkPatterns = []string{
		"connection reset",
		"connection refused",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"unexpected eof",
	}
	unavailablePatterns = []string{
		"502",
		"503",
		"504",
		"bad gateway",
		"service unavailable",
		"gateway timeout",
		"temporarily unavailable",
		"temporary failure",
	}
	rateLimitPatterns = []string{
		"rate limit",
		"too many requests",
		"429",
		"quota exceeded",
	}
	timeoutPatterns = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}
	validationPatterns = []string{
		"validation failed",
		"invalid input",
		"invalid argument",
		"malformed",
	}
)

// Classify maps an arbitrary error into a ServiceError for serviceID.
// Errors already carrying a ServiceError pass through unchanged so
// classification is idempotent.
func Classify(err error, serviceID string) *ServiceError {
	if err == nil {
		return nil
	}

	if se, ok := AsServiceError(err); ok {
		return se
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindTimeout, serviceID, err.Error()).WithCause(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(KindTimeout, serviceID, err.Error()).WithCause(err)
		}
		return New(KindNetwork, serviceID, err.Error()).WithCause(err)
	}

	msg := strings.ToLower(err.Error())

	switch {
	case matchesAny(msg, rateLimitPatterns):
		return New(KindRateLimited, serviceID, err.Error()).WithCause(err)
	case matchesAny(msg, unavailablePatterns):
		return New(KindServiceUnavailable, serviceID, err.Error()).WithCause(err)
	case matchesAny(msg, timeoutPatterns):
		return New(KindTimeout, serviceID, err.Error()).WithCause(err)
	case matchesAny(msg, networkPatterns):
		return New(KindNetwork, serviceID, err.Error()).WithCause(err)
	case matchesAny(msg, validationPatterns):
		return New(KindValidation, serviceID, err.Error()).WithCause(err)
	}

	return New(KindUnknown, serviceID, err.Error()).WithCause(err)
}

// IsRetryable reports whether err looks safe to retry. Classified errors
// answer from their Retryable flag; foreign errors fall back to message
// pattern matching.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if se, ok := AsServiceError(err); ok {
		return se.Retryable
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return matchesAny(msg, networkPatterns) ||
		matchesAny(msg, unavailablePatterns) ||
		matchesAny(msg, rateLimitPatterns) ||
		matchesAny(msg, timeoutPatterns)
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

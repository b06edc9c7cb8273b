package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a service failure
type ErrorKind string

const (
	KindNetwork            ErrorKind = "network"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindRateLimited        ErrorKind = "rate_limited"
	KindTimeout            ErrorKind = "timeout"
	KindValidation         ErrorKind = "validation"
	KindUnknown            ErrorKind = "unknown"
	KindIntegrity          ErrorKind = "integrity"
	KindSchema             ErrorKind = "schema"
)

// NetworkDetail carries fields meaningful only to network failures
type NetworkDetail struct {
	StatusCode int    `json:"status_code,omitempty"`
	URL        string `json:"url,omitempty"`
}

// RateLimitDetail carries fields meaningful only to rate-limit failures
type RateLimitDetail struct {
	RetryAfterHint time.Duration `json:"retry_after_hint,omitempty"`
	Limit          int           `json:"limit,omitempty"`
}

// IntegrityDetail carries fields meaningful only to checksum failures
type IntegrityDetail struct {
	CheckpointID     string `json:"checkpoint_id,omitempty"`
	ExpectedChecksum string `json:"expected_checksum,omitempty"`
	ActualChecksum   string `json:"actual_checksum,omitempty"`
}

// Violation is a single field-level schema violation
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServiceError represents a classified failure raised by an external service
// call or an integrity check. Builder methods are construction-time only;
// once raised, a ServiceError is treated as read-only everywhere.
//
// Kind-specific detail lives in exactly one of the typed detail fields
// matching Kind; components dispatch on Kind instead of probing a context
// bag. WorkspaceID and CachedData are recovery hints that may accompany any
// kind.
type ServiceError struct {
	Kind      ErrorKind `json:"kind"`
	ServiceID string    `json:"service_id"`
	Operation string    `json:"operation,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`

	Network    *NetworkDetail   `json:"network,omitempty"`
	RateLimit  *RateLimitDetail `json:"rate_limit,omitempty"`
	Integrity  *IntegrityDetail `json:"integrity,omitempty"`
	Violations []Violation      `json:"violations,omitempty"`

	WorkspaceID string      `json:"workspace_id,omitempty"`
	CachedData  interface{} `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	label := e.Code
	if label == "" {
		label = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", label, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", label, e.Message)
}

// Unwrap returns the underlying cause
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// New creates a ServiceError with the default retryability for its kind
func New(kind ErrorKind, serviceID, message string) *ServiceError {
	return &ServiceError{
		Kind:      kind,
		ServiceID: serviceID,
		Code:      defaultCode(kind),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: defaultRetryable(kind),
	}
}

func defaultCode(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return "NETWORK_ERROR"
	case KindServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindTimeout:
		return "TIMEOUT"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindIntegrity:
		return "INTEGRITY_ERROR"
	case KindSchema:
		return "SCHEMA_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

func defaultRetryable(kind ErrorKind) bool {
	switch kind {
	case KindNetwork, KindServiceUnavailable, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// WithCause attaches the underlying error
func (e *ServiceError) WithCause(cause error) *ServiceError {
	e.Cause = cause
	return e
}

// WithCode overrides the default code
func (e *ServiceError) WithCode(code string) *ServiceError {
	e.Code = code
	return e
}

// WithOperation records the operation that raised the error
func (e *ServiceError) WithOperation(operation string) *ServiceError {
	e.Operation = operation
	return e
}

// WithRetryable overrides the kind's default retryability. Intended for
// Unknown errors where the raiser knows whether the failure is transient.
func (e *ServiceError) WithRetryable(retryable bool) *ServiceError {
	e.Retryable = retryable
	return e
}

// WithWorkspaceID attaches the workspace this failure relates to, enabling
// checkpoint-based recovery
func (e *ServiceError) WithWorkspaceID(workspaceID string) *ServiceError {
	e.WorkspaceID = workspaceID
	return e
}

// WithCachedData attaches a stale-but-usable payload, enabling cache recovery
func (e *ServiceError) WithCachedData(data interface{}) *ServiceError {
	e.CachedData = data
	return e
}

// WithStatusCode records the HTTP status behind a network failure
func (e *ServiceError) WithStatusCode(status int) *ServiceError {
	if e.Network == nil {
		e.Network = &NetworkDetail{}
	}
	e.Network.StatusCode = status
	return e
}

// WithRetryAfterHint records the server-provided cool-down for a rate limit
func (e *ServiceError) WithRetryAfterHint(d time.Duration) *ServiceError {
	if e.RateLimit == nil {
		e.RateLimit = &RateLimitDetail{}
	}
	e.RateLimit.RetryAfterHint = d
	return e
}

// WithViolations attaches field-level schema violations
func (e *ServiceError) WithViolations(violations ...Violation) *ServiceError {
	e.Violations = append(e.Violations, violations...)
	return e
}

// Common constructors

func NewNetworkError(serviceID, message string) *ServiceError {
	return New(KindNetwork, serviceID, message)
}

func NewServiceUnavailableError(serviceID, message string) *ServiceError {
	return New(KindServiceUnavailable, serviceID, message)
}

func NewRateLimitedError(serviceID, message string) *ServiceError {
	return New(KindRateLimited, serviceID, message)
}

func NewTimeoutError(serviceID, operation string) *ServiceError {
	return New(KindTimeout, serviceID, fmt.Sprintf("%s timed out", operation)).
		WithOperation(operation)
}

func NewValidationError(serviceID, message string) *ServiceError {
	return New(KindValidation, serviceID, message)
}

func NewUnknownError(serviceID, message string) *ServiceError {
	return New(KindUnknown, serviceID, message)
}

func NewIntegrityError(checkpointID, message string) *ServiceError {
	e := New(KindIntegrity, "", message)
	e.Integrity = &IntegrityDetail{CheckpointID: checkpointID}
	return e
}

func NewSchemaError(serviceID, message string, violations ...Violation) *ServiceError {
	return New(KindSchema, serviceID, message).WithViolations(violations...)
}

// AsServiceError unwraps err to a ServiceError if one is in its chain
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsKind checks whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	if se, ok := AsServiceError(err); ok {
		return se.Kind == kind
	}
	return false
}

// GetKind returns the kind in err's chain, KindUnknown for foreign errors
func GetKind(err error) ErrorKind {
	if se, ok := AsServiceError(err); ok {
		return se.Kind
	}
	return KindUnknown
}

// GetCode returns the code in err's chain, UNKNOWN_ERROR for foreign errors
func GetCode(err error) string {
	if se, ok := AsServiceError(err); ok {
		return se.Code
	}
	return "UNKNOWN_ERROR"
}

// RetryAfterHint returns the rate-limit cool-down hint if err carries one
func RetryAfterHint(err error) (time.Duration, bool) {
	se, ok := AsServiceError(err)
	if !ok || se.RateLimit == nil || se.RateLimit.RetryAfterHint <= 0 {
		return 0, false
	}
	return se.RateLimit.RetryAfterHint, true
}

// Package validation checks workspace data, schema conformance, and file
// type transformations, separating blocking errors from advisory
// warnings.
package validation

// Severity grades a validation error
type Severity string

const (
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is one blocking validation failure tagged with the field that
// caused it
type Error struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
}

// Warning is a non-blocking finding, optionally with a suggested fix
type Warning struct {
	Field      string `json:"field"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Validation issue codes
const (
	CodeRequiredField   = "REQUIRED_FIELD"
	CodeInvalidFileSize = "INVALID_FILE_SIZE"
	CodeInvalidURL      = "INVALID_URL"
	CodeDuplicateFileID = "DUPLICATE_FILE_ID"
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeMinLength       = "MIN_LENGTH"
	CodeMaxLength       = "MAX_LENGTH"
	CodePatternMismatch = "PATTERN_MISMATCH"
	CodeOutOfRange      = "OUT_OF_RANGE"
	CodeIncompatible    = "INCOMPATIBLE_TRANSFORMATION"
	CodeUnknownSchema   = "UNKNOWN_SCHEMA"
	CodeInvalidInput    = "INVALID_INPUT"

	CodeLargeFile      = "LARGE_FILE"
	CodeUnreachableURL = "UNREACHABLE_URL"
	CodeDataLoss       = "DATA_LOSS"
)

// Result collects the outcome of one validation pass. IsValid is false
// exactly when Errors is non-empty; warnings never invalidate.
type Result struct {
	IsValid  bool      `json:"isValid"`
	Errors   []Error   `json:"errors,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// NewResult returns an empty, valid result
func NewResult() *Result {
	return &Result{IsValid: true}
}

// AddError records a blocking failure and marks the result invalid
func (r *Result) AddError(field, code, message string) {
	r.Errors = append(r.Errors, Error{
		Field:    field,
		Message:  message,
		Code:     code,
		Severity: SeverityError,
	})
	r.IsValid = false
}

// AddWarning records a non-blocking finding
func (r *Result) AddWarning(field, code, message, suggestion string) {
	r.Warnings = append(r.Warnings, Warning{
		Field:      field,
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	})
}

// Merge folds other into r
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.IsValid {
		r.IsValid = false
	}
}

// ErrorCodes returns the codes of all errors, in order
func (r *Result) ErrorCodes() []string {
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

// WarningCodes returns the codes of all warnings, in order
func (r *Result) WarningCodes() []string {
	codes := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		codes = append(codes, w.Code)
	}
	return codes
}

package validation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tooldock/resilience-core/internal/workspace"
	"github.com/tooldock/resilience-core/pkg/logging"
	"github.com/tooldock/resilience-core/pkg/metrics"
)

// MaxFileSizeBytes is the size above which a file reference draws a
// warning. Larger files still validate; they just sync badly.
const MaxFileSizeBytes = 100 * 1024 * 1024

// URLChecker reports whether a URL is reachable. Checks are best-effort;
// a nil checker skips reachability entirely.
type URLChecker func(ctx context.Context, rawURL string) bool

// WorkspaceValidator validates workspace structure and file references
type WorkspaceValidator struct {
	validate *validator.Validate
	urlCheck URLChecker
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewWorkspaceValidator creates a validator. Metrics may be nil.
func NewWorkspaceValidator(m *metrics.Metrics) *WorkspaceValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &WorkspaceValidator{
		validate: v,
		logger:   logging.GetLogger(),
		metrics:  m,
	}
}

// WithURLChecker enables best-effort URL reachability warnings
func (v *WorkspaceValidator) WithURLChecker(check URLChecker) *WorkspaceValidator {
	v.urlCheck = check
	return v
}

// ValidateWorkspace checks the workspace and every file reference.
// Structural violations (missing ids, negative sizes, malformed URLs,
// duplicate file ids) are errors; oversized files and unreachable URLs
// are warnings.
func (v *WorkspaceValidator) ValidateWorkspace(ctx context.Context, ws *workspace.Workspace) *Result {
	result := NewResult()

	if ws == nil {
		result.AddError("", CodeInvalidInput, "workspace is nil")
		v.record(result)
		return result
	}

	if err := v.validate.Struct(ws); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result.AddError(fieldPath(fe), codeFor(fe), messageFor(fe))
			}
		} else {
			result.AddError("", CodeInvalidInput, err.Error())
		}
	}

	seen := make(map[string]bool, len(ws.Files))
	for i, f := range ws.Files {
		field := fmt.Sprintf("files[%d]", i)

		if f.ID != "" {
			if seen[f.ID] {
				result.AddError(field+".id", CodeDuplicateFileID,
					fmt.Sprintf("duplicate file id %q", f.ID))
			}
			seen[f.ID] = true
		}

		if f.Size > MaxFileSizeBytes {
			result.AddWarning(field+".size", CodeLargeFile,
				fmt.Sprintf("file %q is %d bytes, over the %d byte threshold", f.Name, f.Size, MaxFileSizeBytes),
				"split or compress files over 100MB before syncing")
		}

		if f.URL != "" && v.urlCheck != nil && parsesAsURL(f.URL) {
			if !v.urlCheck(ctx, f.URL) {
				result.AddWarning(field+".url", CodeUnreachableURL,
					fmt.Sprintf("file URL %q is not reachable", f.URL),
					"the file may have been moved or the host may be down")
			}
		}
	}

	v.logger.Debug("Workspace validated",
		"workspace_id", ws.ID,
		"valid", result.IsValid,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
	)
	v.record(result)
	return result
}

// ValidateFileReference checks a single file reference
func (v *WorkspaceValidator) ValidateFileReference(f *workspace.FileReference) *Result {
	result := NewResult()

	if f == nil {
		result.AddError("", CodeInvalidInput, "file reference is nil")
		return result
	}

	if err := v.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result.AddError(fieldPath(fe), codeFor(fe), messageFor(fe))
			}
		} else {
			result.AddError("", CodeInvalidInput, err.Error())
		}
	}

	if f.Size > MaxFileSizeBytes {
		result.AddWarning("size", CodeLargeFile,
			fmt.Sprintf("file %q is %d bytes, over the %d byte threshold", f.Name, f.Size, MaxFileSizeBytes),
			"split or compress files over 100MB before syncing")
	}

	return result
}

func (v *WorkspaceValidator) record(result *Result) {
	if v.metrics != nil {
		v.metrics.RecordValidation(result.IsValid, result.ErrorCodes(), result.WarningCodes())
	}
}

// fieldPath turns "Workspace.files[0].size" into "files[0].size"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func codeFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return CodeRequiredField
	case "gte":
		if fe.Field() == "size" {
			return CodeInvalidFileSize
		}
		return CodeOutOfRange
	case "url":
		return CodeInvalidURL
	}
	return CodeInvalidInput
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %q is required", fieldPath(fe))
	case "gte":
		return fmt.Sprintf("field %q must be >= %s, got %v", fieldPath(fe), fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("field %q is not a valid URL", fieldPath(fe))
	}
	return fmt.Sprintf("field %q failed %s validation", fieldPath(fe), fe.Tag())
}

func parsesAsURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tooldock/resilience-core/internal/workspace"
)

func hasErrorCode(t *testing.T, r *Result, code string) Error {
	t.Helper()
	for _, e := range r.Errors {
		if e.Code == code {
			return e
		}
	}
	t.Fatalf("expected error code %s, got %v", code, r.ErrorCodes())
	return Error{}
}

func hasWarningCode(t *testing.T, r *Result, code string) Warning {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Code == code {
			return w
		}
	}
	t.Fatalf("expected warning code %s, got %v", code, r.WarningCodes())
	return Warning{}
}

func TestValidateAgainstSchema_Valid(t *testing.T) {
	schema := DefaultRegistry().Get("image")
	require.NotNil(t, schema)

	result := ValidateAgainstSchema(map[string]interface{}{
		"format": "png",
		"width":  float64(800),
		"height": float64(600),
	}, schema)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
}

func TestValidateAgainstSchema_MissingRequired(t *testing.T) {
	schema := DefaultRegistry().Get("image")

	result := ValidateAgainstSchema(map[string]interface{}{
		"width": float64(800),
	}, schema)

	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodeRequiredField)
	assert.Equal(t, "format", err.Field)
}

func TestValidateAgainstSchema_NilRequiredField(t *testing.T) {
	schema := DefaultRegistry().Get("document")

	result := ValidateAgainstSchema(map[string]interface{}{
		"title": nil,
	}, schema)

	assert.False(t, result.IsValid)
	hasErrorCode(t, result, CodeRequiredField)
}

func TestValidateAgainstSchema_TypeMismatch(t *testing.T) {
	schema := DefaultRegistry().Get("image")

	result := ValidateAgainstSchema(map[string]interface{}{
		"format": "png",
		"width":  "wide",
	}, schema)

	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodeTypeMismatch)
	assert.Equal(t, "width", err.Field)
}

func TestValidateAgainstSchema_StringRules(t *testing.T) {
	schema := &DataSchema{
		Type: "note",
		Properties: map[string]Property{
			"title": {Type: TypeString, Rules: Rules{MinLength: 3, MaxLength: 5}},
		},
		Version: "1.0",
	}
	require.NoError(t, NewRegistry().Register("note", schema))

	result := ValidateAgainstSchema(map[string]interface{}{"title": "ab"}, schema)
	assert.False(t, result.IsValid)
	hasErrorCode(t, result, CodeMinLength)

	result = ValidateAgainstSchema(map[string]interface{}{"title": "abcdef"}, schema)
	assert.False(t, result.IsValid)
	hasErrorCode(t, result, CodeMaxLength)

	result = ValidateAgainstSchema(map[string]interface{}{"title": "abcd"}, schema)
	assert.True(t, result.IsValid)
}

func TestValidateAgainstSchema_Pattern(t *testing.T) {
	schema := DefaultRegistry().Get("image")

	result := ValidateAgainstSchema(map[string]interface{}{
		"format": "bitmap",
	}, schema)

	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodePatternMismatch)
	assert.Equal(t, "format", err.Field)
}

func TestValidateAgainstSchema_Range(t *testing.T) {
	schema := DefaultRegistry().Get("image")

	result := ValidateAgainstSchema(map[string]interface{}{
		"format": "png",
		"width":  float64(-10),
	}, schema)

	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodeOutOfRange)
	assert.Equal(t, "width", err.Field)
}

func TestValidateAgainstSchema_IntegerValuesAcceptedAsNumbers(t *testing.T) {
	schema := DefaultRegistry().Get("video")

	result := ValidateAgainstSchema(map[string]interface{}{
		"durationMs": int64(90000),
		"width":      1920,
	}, schema)

	assert.True(t, result.IsValid)
}

func TestValidateAgainstSchema_NilInputs(t *testing.T) {
	result := ValidateAgainstSchema(nil, DefaultRegistry().Get("image"))
	assert.False(t, result.IsValid)
	hasErrorCode(t, result, CodeInvalidInput)

	result = ValidateAgainstSchema(map[string]interface{}{}, nil)
	assert.False(t, result.IsValid)
	hasErrorCode(t, result, CodeUnknownSchema)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("custom"))

	schema := &DataSchema{Type: "custom", Version: "1.0"}
	require.NoError(t, r.Register("custom", schema))
	assert.Same(t, schema, r.Get("custom"))

	assert.Error(t, r.Register("", schema))
	assert.Error(t, r.Register("custom", nil))
}

func TestRegistry_RejectsBadPattern(t *testing.T) {
	r := NewRegistry()
	err := r.Register("bad", &DataSchema{
		Type: "bad",
		Properties: map[string]Property{
			"field": {Type: TypeString, Rules: Rules{Pattern: "("}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestDefaultRegistry_Kinds(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t,
		[]string{"audio", "code", "document", "image", "media", "text", "video"},
		r.Kinds())
}

func validWorkspace() *workspace.Workspace {
	return &workspace.Workspace{
		ID:   "ws-1",
		Name: "My Workspace",
		Files: []workspace.FileReference{
			{ID: "f1", Name: "photo.png", Type: workspace.FileTypeImage, Size: 2048},
			{ID: "f2", Name: "notes.md", Type: workspace.FileTypeDocument, Size: 512, URL: "https://example.com/notes.md"},
		},
	}
}

func TestValidateWorkspace_Valid(t *testing.T) {
	v := NewWorkspaceValidator(nil)

	result := v.ValidateWorkspace(context.Background(), validWorkspace())

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateWorkspace_MissingIDAndName(t *testing.T) {
	v := NewWorkspaceValidator(nil)

	result := v.ValidateWorkspace(context.Background(), &workspace.Workspace{})

	assert.False(t, result.IsValid)
	fields := make([]string, 0)
	for _, e := range result.Errors {
		assert.Equal(t, CodeRequiredField, e.Code)
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"id", "name"}, fields)
}

func TestValidateWorkspace_FileMissingRequiredFields(t *testing.T) {
	v := NewWorkspaceValidator(nil)
	ws := validWorkspace()
	ws.Files = append(ws.Files, workspace.FileReference{Size: 100})

	result := v.ValidateWorkspace(context.Background(), ws)

	assert.False(t, result.IsValid)
	var fields []string
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "files[2].id")
	assert.Contains(t, fields, "files[2].name")
	assert.Contains(t, fields, "files[2].type")
}

func TestValidateWorkspace_NegativeFileSize(t *testing.T) {
	v := NewWorkspaceValidator(nil)
	ws := validWorkspace()
	ws.Files[0].Size = -1

	result := v.ValidateWorkspace(context.Background(), ws)

	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodeInvalidFileSize)
	assert.Equal(t, "files[0].size", err.Field)
}

func TestValidateWorkspace_OversizedFileIsWarningOnly(t *testing.T) {
	v := NewWorkspaceValidator(nil)
	ws := validWorkspace()
	ws.Files[0].Size = 150 * 1024 * 1024

	result := v.ValidateWorkspace(context.Background(), ws)

	assert.True(t, result.IsValid)
	w := hasWarningCode(t, result, CodeLargeFile)
	assert.Equal(t, "files[0].size", w.Field)
	assert.NotEmpty(t, w.Suggestion)
}

func TestValidateWorkspace_InvalidURL(t *testing.T) {
	v := NewWorkspaceValidator(nil)
	ws := validWorkspace()
	ws.Files[1].URL = "not a url"

	result := v.ValidateWorkspace(context.Background(), ws)

	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodeInvalidURL)
	assert.Equal(t, "files[1].url", err.Field)
}

func TestValidateWorkspace_DuplicateFileIDs(t *testing.T) {
	v := NewWorkspaceValidator(nil)
	ws := validWorkspace()
	ws.Files = append(ws.Files, workspace.FileReference{
		ID: "f1", Name: "copy.png", Type: workspace.FileTypeImage, Size: 10,
	})

	result := v.ValidateWorkspace(context.Background(), ws)

	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodeDuplicateFileID)
	assert.Equal(t, "files[2].id", err.Field)
}

func TestValidateWorkspace_UnreachableURLWarning(t *testing.T) {
	v := NewWorkspaceValidator(nil).WithURLChecker(
		func(ctx context.Context, rawURL string) bool { return false },
	)

	result := v.ValidateWorkspace(context.Background(), validWorkspace())

	assert.True(t, result.IsValid)
	w := hasWarningCode(t, result, CodeUnreachableURL)
	assert.Equal(t, "files[1].url", w.Field)
}

func TestValidateWorkspace_Nil(t *testing.T) {
	v := NewWorkspaceValidator(nil)

	result := v.ValidateWorkspace(context.Background(), nil)

	assert.False(t, result.IsValid)
	hasErrorCode(t, result, CodeInvalidInput)
}

func TestValidateFileReference(t *testing.T) {
	v := NewWorkspaceValidator(nil)

	result := v.ValidateFileReference(&workspace.FileReference{
		ID: "f1", Name: "a.png", Type: workspace.FileTypeImage, Size: 10,
	})
	assert.True(t, result.IsValid)

	result = v.ValidateFileReference(&workspace.FileReference{
		ID: "f1", Name: "a.png", Type: workspace.FileTypeImage, Size: -1,
	})
	assert.False(t, result.IsValid)
	err := hasErrorCode(t, result, CodeInvalidFileSize)
	assert.Equal(t, "size", err.Field)

	result = v.ValidateFileReference(nil)
	assert.False(t, result.IsValid)
}

func TestResult_Merge(t *testing.T) {
	a := NewResult()
	a.AddWarning("x", CodeLargeFile, "big", "")

	b := NewResult()
	b.AddError("y", CodeRequiredField, "missing")

	a.Merge(b)
	assert.False(t, a.IsValid)
	assert.Len(t, a.Errors, 1)
	assert.Len(t, a.Warnings, 1)

	a.Merge(nil)
	assert.Len(t, a.Errors, 1)
}

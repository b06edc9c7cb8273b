package validation

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Property value types
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Rules constrains a single property. Zero values mean unconstrained;
// Min and Max are pointers because zero is a meaningful bound.
type Rules struct {
	Required  bool     `json:"required,omitempty"`
	MinLength int      `json:"minLength,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`

	pattern *regexp.Regexp
}

// Num returns a pointer for use as a range bound
func Num(v float64) *float64 {
	return &v
}

// Property declares the expected type and rules for one field
type Property struct {
	Type  string `json:"type"`
	Rules Rules  `json:"rules,omitempty"`
}

// DataSchema describes the shape of one logical data kind
type DataSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
	Version    string              `json:"version"`
}

// Registry holds schemas keyed by data kind. It is populated at startup
// and safe for concurrent reads afterwards.
type Registry struct {
	mutex   sync.RWMutex
	schemas map[string]*DataSchema
}

// NewRegistry creates an empty schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*DataSchema),
	}
}

// Register adds a schema under kind, compiling any property patterns.
// Registering the same kind again replaces the previous schema.
func (r *Registry) Register(kind string, schema *DataSchema) error {
	if kind == "" {
		return fmt.Errorf("schema kind must not be empty")
	}
	if schema == nil {
		return fmt.Errorf("schema for kind %q must not be nil", kind)
	}

	for name, prop := range schema.Properties {
		if prop.Rules.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(prop.Rules.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern for %s.%s: %w", kind, name, err)
		}
		prop.Rules.pattern = re
		schema.Properties[name] = prop
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.schemas[kind] = schema
	return nil
}

// Get returns the schema for kind, or nil when unknown
func (r *Registry) Get(kind string) *DataSchema {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.schemas[kind]
}

// Kinds returns all registered kinds, sorted
func (r *Registry) Kinds() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	kinds := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultRegistry returns a registry pre-loaded with the schemas for the
// data kinds the workspace understands
func DefaultRegistry() *Registry {
	r := NewRegistry()

	schemas := map[string]*DataSchema{
		"image": {
			Type: "image",
			Properties: map[string]Property{
				"format": {Type: TypeString, Rules: Rules{Pattern: `^(png|jpe?g|gif|webp|svg)$`}},
				"width":  {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
				"height": {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
				"alt":    {Type: TypeString, Rules: Rules{MaxLength: 512}},
			},
			Required: []string{"format"},
			Version:  "1.0",
		},
		"document": {
			Type: "document",
			Properties: map[string]Property{
				"title":     {Type: TypeString, Rules: Rules{MinLength: 1, MaxLength: 512}},
				"pageCount": {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
				"format":    {Type: TypeString},
				"outline":   {Type: TypeArray},
			},
			Required: []string{"title"},
			Version:  "1.0",
		},
		"code": {
			Type: "code",
			Properties: map[string]Property{
				"language":    {Type: TypeString, Rules: Rules{MinLength: 1}},
				"content":     {Type: TypeString},
				"highlighted": {Type: TypeBoolean},
			},
			Required: []string{"language"},
			Version:  "1.0",
		},
		"text": {
			Type: "text",
			Properties: map[string]Property{
				"content":  {Type: TypeString},
				"encoding": {Type: TypeString, Rules: Rules{Pattern: `^(utf-8|utf-16|ascii)$`}},
			},
			Required: []string{"content"},
			Version:  "1.0",
		},
		"audio": {
			Type: "audio",
			Properties: map[string]Property{
				"durationMs": {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
				"codec":      {Type: TypeString},
				"transcript": {Type: TypeString},
			},
			Version: "1.0",
		},
		"video": {
			Type: "video",
			Properties: map[string]Property{
				"durationMs": {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
				"codec":      {Type: TypeString},
				"width":      {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
				"height":     {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
				"audio":      {Type: TypeObject},
			},
			Version: "1.0",
		},
		"media": {
			Type: "media",
			Properties: map[string]Property{
				"mimeType": {Type: TypeString, Rules: Rules{Pattern: `^[a-z]+/[a-z0-9.+-]+$`}},
				"sizeBytes": {Type: TypeNumber, Rules: Rules{Min: Num(0)}},
			},
			Required: []string{"mimeType"},
			Version:  "1.0",
		},
	}

	for kind, schema := range schemas {
		// Patterns above are constants and always compile.
		_ = r.Register(kind, schema)
	}
	return r
}

// ValidateAgainstSchema checks data against schema: all required fields
// present and non-nil, and every declared property that is present has
// the declared type and passes its rules
func ValidateAgainstSchema(data map[string]interface{}, schema *DataSchema) *Result {
	result := NewResult()

	if schema == nil {
		result.AddError("", CodeUnknownSchema, "no schema provided")
		return result
	}
	if data == nil {
		result.AddError("", CodeInvalidInput, "no data provided")
		return result
	}

	for _, field := range schema.Required {
		if v, ok := data[field]; !ok || v == nil {
			result.AddError(field, CodeRequiredField, fmt.Sprintf("required field %q is missing", field))
		}
	}

	for name, prop := range schema.Properties {
		value, ok := data[name]
		if !ok || value == nil {
			continue
		}
		validateProperty(result, name, value, prop)
	}

	return result
}

func validateProperty(result *Result, field string, value interface{}, prop Property) {
	switch prop.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			result.AddError(field, CodeTypeMismatch, fmt.Sprintf("field %q must be a string", field))
			return
		}
		validateStringRules(result, field, s, prop.Rules)
	case TypeNumber:
		n, ok := asNumber(value)
		if !ok {
			result.AddError(field, CodeTypeMismatch, fmt.Sprintf("field %q must be a number", field))
			return
		}
		validateRange(result, field, n, prop.Rules)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			result.AddError(field, CodeTypeMismatch, fmt.Sprintf("field %q must be a boolean", field))
		}
	case TypeObject:
		if _, ok := value.(map[string]interface{}); !ok {
			result.AddError(field, CodeTypeMismatch, fmt.Sprintf("field %q must be an object", field))
		}
	case TypeArray:
		if _, ok := value.([]interface{}); !ok {
			result.AddError(field, CodeTypeMismatch, fmt.Sprintf("field %q must be an array", field))
		}
	}
}

func validateStringRules(result *Result, field, s string, rules Rules) {
	if rules.MinLength > 0 && len(s) < rules.MinLength {
		result.AddError(field, CodeMinLength,
			fmt.Sprintf("field %q must be at least %d characters", field, rules.MinLength))
	}
	if rules.MaxLength > 0 && len(s) > rules.MaxLength {
		result.AddError(field, CodeMaxLength,
			fmt.Sprintf("field %q must be at most %d characters", field, rules.MaxLength))
	}
	if rules.pattern != nil && !rules.pattern.MatchString(s) {
		result.AddError(field, CodePatternMismatch,
			fmt.Sprintf("field %q does not match pattern %s", field, rules.Pattern))
	}
}

func validateRange(result *Result, field string, n float64, rules Rules) {
	if rules.Min != nil && n < *rules.Min {
		result.AddError(field, CodeOutOfRange,
			fmt.Sprintf("field %q must be >= %v", field, *rules.Min))
	}
	if rules.Max != nil && n > *rules.Max {
		result.AddError(field, CodeOutOfRange,
			fmt.Sprintf("field %q must be <= %v", field, *rules.Max))
	}
}

func asNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

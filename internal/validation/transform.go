package validation

import (
	"fmt"
	"sort"
)

// transformTargets maps each data kind to the kinds it can become.
// Kinds not listed only transform to themselves.
var transformTargets = map[string][]string{
	"image":    {"image", "document"},
	"document": {"document", "text"},
	"code":     {"code", "text", "document"},
	"audio":    {"audio", "media"},
	"video":    {"video", "media", "audio"},
}

// CanTransform reports whether data of kind from can become kind to
func CanTransform(from, to string) bool {
	if from == to {
		return true
	}
	for _, t := range transformTargets[from] {
		if t == to {
			return true
		}
	}
	return false
}

// TransformTargets returns the kinds from can become, identity included
func TransformTargets(from string) []string {
	targets := transformTargets[from]
	if targets == nil {
		return []string{from}
	}
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}

// ValidateTransformation checks whether data shaped by source can be
// converted to target. Incompatible kind pairs are an error; source
// properties the target schema cannot represent draw data-loss warnings.
// When data is non-nil, loss warnings are limited to fields actually
// present in it.
func ValidateTransformation(data map[string]interface{}, source, target *DataSchema) *Result {
	result := NewResult()

	if source == nil {
		result.AddError("", CodeUnknownSchema, "no source schema provided")
		return result
	}
	if target == nil {
		result.AddError("", CodeUnknownSchema, "no target schema provided")
		return result
	}

	if !CanTransform(source.Type, target.Type) {
		result.AddError("", CodeIncompatible,
			fmt.Sprintf("cannot transform %s to %s", source.Type, target.Type))
		return result
	}

	names := make([]string, 0, len(source.Properties))
	for name := range source.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := target.Properties[name]; ok {
			continue
		}
		if data != nil {
			if _, present := data[name]; !present {
				continue
			}
		}
		result.AddWarning(name, CodeDataLoss,
			fmt.Sprintf("field %q is not supported by %s and will be lost", name, target.Type),
			"keep the original if you need this field")
	}

	return result
}

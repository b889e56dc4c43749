package models

import (
	"fmt"
	"math"
)

// FieldKind distinguishes profile fields that apply per request from fields
// that require a runtime restart to take effect.
type FieldKind string

const (
	// KindGeneration fields are injected into chat requests and never
	// require a backend restart.
	KindGeneration FieldKind = "generation"

	// KindRuntime fields change the backing runtime's launch arguments;
	// applying a different value triggers a reconfigure.
	KindRuntime FieldKind = "runtime"
)

// FieldSpec describes one recognized profile field.
type FieldSpec struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`
	Type string    `json:"type"` // "number", "integer", "string"

	// Min/Max bound numeric fields (inclusive). Ignored for strings.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`

	// Enum lists the allowed values for enumerated string fields.
	Enum []string `json:"enum,omitempty"`

	Description string `json:"description,omitempty"`
}

// profileSchema is the full set of recognized fields. Order matters only
// for schema listing.
var profileSchema = []FieldSpec{
	{Name: "temperature", Kind: KindGeneration, Type: "number", Min: 0, Max: 2,
		Description: "Sampling temperature."},
	{Name: "top_p", Kind: KindGeneration, Type: "number", Min: 0, Max: 1,
		Description: "Nucleus sampling probability mass."},
	{Name: "top_k", Kind: KindGeneration, Type: "integer", Min: 0, Max: 1000,
		Description: "Top-k sampling cutoff."},
	{Name: "max_tokens", Kind: KindGeneration, Type: "integer", Min: 1, Max: math.MaxInt32,
		Description: "Completion token budget."},
	{Name: "system_prompt", Kind: KindGeneration, Type: "string",
		Description: "System prompt prepended when the request carries none."},
	{Name: "reasoning_effort", Kind: KindGeneration, Type: "string",
		Enum: []string{"low", "medium", "high"},
		Description: "Reasoning effort hint for models that support it."},
	{Name: "runtime_ctx_size", Kind: KindRuntime, Type: "integer", Min: 512, Max: 1 << 20,
		Description: "Context window size; changing it restarts the runtime."},
}

var schemaByName = func() map[string]FieldSpec {
	m := make(map[string]FieldSpec, len(profileSchema))
	for _, f := range profileSchema {
		m[f.Name] = f
	}
	return m
}()

// Schema returns the recognized profile fields.
func Schema() []FieldSpec {
	out := make([]FieldSpec, len(profileSchema))
	copy(out, profileSchema)
	return out
}

// ValidateFields checks every non-nil value in a profile update against the
// schema. Nil values pass: they mean "unset". Unknown fields are rejected.
func ValidateFields(values map[string]any) error {
	for name, value := range values {
		spec, ok := schemaByName[name]
		if !ok {
			return &ValidationError{Field: name, Message: "unknown profile field"}
		}
		if value == nil {
			continue
		}
		if err := validateValue(spec, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(spec FieldSpec, value any) error {
	switch spec.Type {
	case "number", "integer":
		num, ok := asFloat(value)
		if !ok {
			return &ValidationError{Field: spec.Name, Message: "expected a number"}
		}
		if spec.Type == "integer" && num != math.Trunc(num) {
			return &ValidationError{Field: spec.Name, Message: "expected an integer"}
		}
		if num < spec.Min || num > spec.Max {
			return &ValidationError{
				Field:   spec.Name,
				Message: fmt.Sprintf("must be between %g and %g", spec.Min, spec.Max),
			}
		}
	case "string":
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Field: spec.Name, Message: "expected a string"}
		}
		if len(spec.Enum) > 0 {
			for _, allowed := range spec.Enum {
				if s == allowed {
					return nil
				}
			}
			return &ValidationError{
				Field:   spec.Name,
				Message: fmt.Sprintf("must be one of %v", spec.Enum),
			}
		}
	}
	return nil
}

// asFloat accepts the numeric types a decoded JSON document can carry.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// SplitFields partitions profile values into generation and runtime maps.
// Nil (unset) values are dropped from both.
func SplitFields(values map[string]any) (generation, runtime map[string]any) {
	generation = make(map[string]any)
	runtime = make(map[string]any)
	for name, value := range values {
		if value == nil {
			continue
		}
		switch schemaByName[name].Kind {
		case KindRuntime:
			runtime[name] = value
		default:
			generation[name] = value
		}
	}
	return generation, runtime
}

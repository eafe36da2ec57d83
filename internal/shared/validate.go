package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError bundles field-level failures for one operation. Operations
// abort before any write when validation fails, so the caller always receives
// the full list at once.
type ValidationError struct {
	Fields map[string]string
}

// Error renders the bundle as a single deterministic string.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field bundle.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// FieldErrors accumulates field failures and converts to a ValidationError.
type FieldErrors map[string]string

// Add records a failure for a field. The first message per field wins.
func (f FieldErrors) Add(field, message string) {
	if _, ok := f[field]; !ok {
		f[field] = message
	}
}

// AsError returns a ValidationError, or nil when no failures were recorded.
func (f FieldErrors) AsError() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs go-playground validation tags on the input and converts
// failures into a field-keyed ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return err
	}
	fields := FieldErrors{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields.Add(strings.ToLower(fe.Field()[:1])+fe.Field()[1:], fmt.Sprintf("failed %q constraint", fe.Tag()))
		}
	}
	return fields.AsError()
}

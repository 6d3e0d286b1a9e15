// Package validate wraps the process-wide struct validator. Field names in
// errors are the JSON names clients send.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// v caches struct metadata and is safe for concurrent use.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct validates the validate tags on s.
func Struct(s interface{}) error {
	return v.Struct(s)
}

// Var validates a single value against tag.
func Var(field interface{}, tag string) error {
	return v.Var(field, tag)
}

// FieldError is one failed rule in client-facing form.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`

	// Missing is set when a top-level field was absent or empty. Rules
	// failing inside list elements never set it.
	Missing bool `json:"-"`
}

// Format converts validator errors into FieldErrors. It returns nil for
// errors that did not come from the validator.
func Format(err error) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]FieldError, len(ve))
	for i, fe := range ve {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: message(fe),
			Missing: topLevel(fe) && (fe.Tag() == "required" || (fe.Tag() == "min" && fe.Kind() == reflect.Slice && fe.Param() == "1")),
		}
	}
	return out
}

// topLevel reports whether fe names a field of the validated struct itself
// rather than one reached through dive.
func topLevel(fe validator.FieldError) bool {
	return strings.Count(fe.Namespace(), ".") <= 1 && !strings.Contains(fe.Namespace(), "[")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s item(s)", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q rule", fe.Field(), fe.Tag())
	}
}

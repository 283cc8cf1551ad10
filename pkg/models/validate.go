package models

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report json names so messages line up with what the API and the forms call things
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "rating", func(fl validator.FieldLevel) bool {
		return IsRatingLevel(fl.Field().Float(), true)
	})
	mustRegister(v, "richtext", func(fl validator.FieldLevel) bool {
		return !IsEmptyRichText(fl.Field().String())
	})
	mustRegister(v, "maxwords", func(fl validator.FieldLevel) bool {
		return WordCount(fl.Field().String()) <= MaxAnswerWords
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("models: register %s validation: %v", tag, err))
	}
}

// Validate checks a record or request against its schema tags. Failures
// come back as a *ValidationError.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return newValidationError(err)
	}
	return nil
}

// ValidationError carries per-field messages for inline display.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Field returns the message for one field, or "".
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.Fields[name]
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string)}
	for _, fe := range verrs {
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i >= 0 {
			field = field[:i]
		}
		if _, seen := out.Fields[field]; seen {
			continue
		}
		out.Fields[field] = message(field, fe)
	}
	return out
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Field() != field {
			return "tags cannot be blank"
		}
		return field + " is required"
	case "richtext":
		return field + " cannot be empty"
	case "maxwords":
		return fmt.Sprintf("%s is too long. Maximum %d words allowed.", field, MaxAnswerWords)
	case "unique":
		return field + " must not repeat"
	case "max":
		if field == "tags" {
			return fmt.Sprintf("at most %d tags allowed", MaxTags)
		}
		return fmt.Sprintf("%s is too long", field)
	case "gt":
		return field + " is invalid"
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/techprep/session-service/internal/models"
)

// ValidationError describes one rejected field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Validator wraps go-playground/validator with the service's custom rules
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names instead of Go field names
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

// Validate returns ValidationErrors, or nil when s is valid
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ToValidationErrors converts validator output into ValidationErrors
func ToValidationErrors(err error) ValidationErrors {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "invalid"}}
	}

	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Message: describe(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "question_type":
		return "must be one of single, multi, written"
	case "difficulty_level":
		return "must be one of basic, intermediate, advanced"
	case "template_kind":
		return "must be practice or interview"
	case "visibility":
		return "must be one of public, group, user"
	case "navigation_mode":
		return "must be linear or free"
	case "feedback_mode":
		return "must be immediate or on_submit"
	case "match_threshold":
		return "must be greater than 0 and at most 100"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func (v *Validator) registerRules() {
	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.QuestionType(fl.Field().String()).IsValid()
	})

	v.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		return models.DifficultyLevel(fl.Field().String()).IsValid()
	})

	v.validate.RegisterValidation("template_kind", func(fl validator.FieldLevel) bool {
		return models.TemplateKind(fl.Field().String()).IsValid()
	})

	v.validate.RegisterValidation("visibility", func(fl validator.FieldLevel) bool {
		switch models.AssignmentVisibility(fl.Field().String()) {
		case models.VisibilityPublic, models.VisibilityGroup, models.VisibilityUser:
			return true
		}
		return false
	})

	// Empty modes fall back to defaults when the template is created
	v.validate.RegisterValidation("navigation_mode", func(fl validator.FieldLevel) bool {
		switch models.NavigationMode(fl.Field().String()) {
		case "", models.NavigationLinear, models.NavigationFree:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("feedback_mode", func(fl validator.FieldLevel) bool {
		switch models.FeedbackMode(fl.Field().String()) {
		case "", models.FeedbackImmediate, models.FeedbackOnSubmit:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("match_threshold", func(fl validator.FieldLevel) bool {
		threshold := fl.Field().Float()
		return threshold > 0 && threshold <= 100
	})
}

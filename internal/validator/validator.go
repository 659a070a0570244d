package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	configNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,100}$`)
)

// Validator represents a validator instance
type Validator struct {
	validate *validator.Validate
}

// New creates a new validator instance
func New() *Validator {
	once.Do(func() {
		validate = validator.New()
		_ = Register(validate)
	})

	return &Validator{
		validate: validate,
	}
}

// Struct validates a struct
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		return formatErrors(err)
	}
	return nil
}

// Var validates a single variable
func (v *Validator) Var(field any, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return formatErrors(err)
	}
	return nil
}

// Register adds the custom validations to engine and reports fields by
// their JSON names. The gin binding engine is set up with it as well.
func Register(engine *validator.Validate) error {
	if err := engine.RegisterValidation("configname", validateConfigName); err != nil {
		return fmt.Errorf("failed to register configname validation: %w", err)
	}

	// Use JSON tag names in error messages
	engine.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return nil
}

// Format turns validation errors into a readable message. Other errors
// (malformed JSON) are returned wrapped.
func Format(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return formatErrors(err)
	}
	return fmt.Errorf("invalid request body: %w", err)
}

// Engine returns the underlying validator engine
func (v *Validator) Engine() any {
	return v.validate
}

// ValidConfigName reports whether name is a valid config or project name
func ValidConfigName(name string) bool {
	return configNamePattern.MatchString(name)
}

func formatErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid validation error: %w", err)
	}

	var errMsgs []string
	for _, fe := range verrs {
		errMsgs = append(errMsgs, formatError(fe))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(errMsgs, "; "))
}

// formatError formats a validation error
func formatError(err validator.FieldError) string {
	field := err.Field()
	if field == "" {
		field = "value"
	}
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, err.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, err.Param())
	case "configname":
		return fmt.Sprintf("%s must be 1-100 letters, digits, '_', '.' or '-'", field)
	default:
		return fmt.Sprintf("%s failed on tag %s", field, err.Tag())
	}
}

func validateConfigName(fl validator.FieldLevel) bool {
	return ValidConfigName(fl.Field().String())
}

package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	entityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,99}$`)
	stateNamePattern  = regexp.MustCompile(`^[a-z][a-z0-9_]{0,49}$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("entitytype", func(fl validator.FieldLevel) bool {
			return entityTypePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("statename", func(fl validator.FieldLevel) bool {
			return stateNamePattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks s against its validate tags and returns a *ValidationError
// describing every violated field.
func Validate(s any) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %T: %w", s, err)
	}
	out := &ValidationError{Violations: make([]FieldViolation, 0, len(verrs))}
	for _, fe := range verrs {
		out.Violations = append(out.Violations, FieldViolation{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// ValidEntityType reports whether name is a well-formed entity type key.
func ValidEntityType(name string) bool {
	return entityTypePattern.MatchString(name)
}

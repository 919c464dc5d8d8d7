package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// newValidator reports fields by their JSON names and knows the min_nominal
// tag.
func newValidator(minNominal int64) *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("min_nominal", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() >= minNominal
	})

	return v
}

// validateStruct returns a *ValidationError for the first failing field.
func validateStruct(v *validator.Validate, minNominal int64, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	return &ValidationError{Field: fe.Field(), Message: fieldMessage(fe, minNominal)}
}

func fieldMessage(fe validator.FieldError, minNominal int64) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min_nominal":
		return fmt.Sprintf("minimum certificate nominal is %d", minNominal)
	default:
		return fmt.Sprintf("invalid value for %s", fe.Field())
	}
}

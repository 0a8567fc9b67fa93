// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs the struct tags of v and returns one entry per
// failing field, or nil
func validateRequest(v any) []models.FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Message: err.Error()}}
	}

	details := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, models.FieldError{
			Field:   fieldPath(fe),
			Message: fieldMessage(fe),
		})
	}
	return details
}

// fieldPath drops the struct name: "RegisterRequest.profile.firstName"
// becomes "profile.firstName"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "alphanum":
		return field + " must contain only letters and numbers"
	case "oneof":
		return field + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "bcp47_language_tag":
		return field + " must be a valid language tag"
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s must be %s %s characters", field, bound, fe.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("%s must contain %s %s items", field, bound, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, fe.Param())
	}
	return field + " is invalid"
}

// validateTooth checks an optional tooth selection, normalizing the system
// name and letter case in place
func validateTooth(field string, t *dental.ToothSelection) *models.FieldError {
	if t == nil {
		return nil
	}
	system, err := dental.ParseSystem(string(t.System))
	if err != nil {
		return &models.FieldError{Field: field + ".system", Message: "system must be one of: FDI, Universal"}
	}
	t.System = system
	t.Value = strings.ToUpper(t.Value)
	if err := t.Validate(); err != nil {
		return &models.FieldError{Field: field + ".value", Message: fmt.Sprintf("%s is not a valid %s tooth", t.Value, system)}
	}
	return nil
}

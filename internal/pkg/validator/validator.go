// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package validator wraps go-playground/validator with the custom
// validations used across the API request types.
package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validator validates structs using `validate` tags.
type Validator struct {
	v *validator.Validate
}

var (
	once     sync.Once
	instance *validator.Validate
)

// New returns a Validator backed by the shared underlying instance.
func New() *Validator {
	once.Do(func() {
		instance = validator.New()

		// Report errors under the json field name, not the Go field name.
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		registerCustomValidations(instance)
	})
	return &Validator{v: instance}
}

// Validate validates a struct using its `validate` tags.
func (val *Validator) Validate(v any) error {
	return val.v.Struct(v)
}

// ValidateVar validates a single variable against a tag expression.
func (val *Validator) ValidateVar(v any, tag string) error {
	return val.v.Var(v, tag)
}

// ValidationErrors converts a validation error into a field -> message map.
// Non-validation errors are returned under the "_error" key.
func (val *Validator) ValidationErrors(err error) map[string]string {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_error": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = formatValidationError(fe)
	}
	return out
}

// formatValidationError produces a human-readable message for one failure.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "username":
		return "must start with a letter and contain only letters, digits, and underscores"
	case "password_strength":
		return "must be at least 8 characters with upper case, lower case, and a digit"
	case "feature_type":
		return "is not a recognized feature type"
	case "hierarchy_level":
		return "is not a recognized hierarchy level"
	case "time_of_day":
		return "must be in HH:MM format"
	case "cron":
		return "must be a valid cron expression"
	case "hexstring":
		return "must contain only hexadecimal characters"
	case "port":
		return "must be a valid TCP port (1-65535)"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// ============================================================================
// Custom validations
// ============================================================================

var (
	usernameRe  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,}$`)
	hexRe       = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	timeOfDayRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)
)

// featureTypes mirrors models.ValidFeatureTypes. Kept as string literals so
// this package stays dependency-free of internal/models.
var featureTypes = map[string]bool{
	"patch": true, "alert_rule": true, "backup": true, "security": true,
	"monitoring": true, "maintenance": true, "compliance": true, "automation": true,
}

var hierarchyLevels = map[string]bool{
	"partner": true, "organization": true, "site": true,
	"device_group": true, "device": true,
}

func registerCustomValidations(v *validator.Validate) {
	v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})

	v.RegisterValidation("password_strength", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) < 8 {
			return false
		}
		var upper, lower, digit bool
		for _, r := range s {
			switch {
			case r >= 'A' && r <= 'Z':
				upper = true
			case r >= 'a' && r <= 'z':
				lower = true
			case r >= '0' && r <= '9':
				digit = true
			}
		}
		return upper && lower && digit
	})

	v.RegisterValidation("feature_type", func(fl validator.FieldLevel) bool {
		return featureTypes[fl.Field().String()]
	})

	v.RegisterValidation("hierarchy_level", func(fl validator.FieldLevel) bool {
		return hierarchyLevels[fl.Field().String()]
	})

	v.RegisterValidation("time_of_day", func(fl validator.FieldLevel) bool {
		return timeOfDayRe.MatchString(fl.Field().String())
	})

	v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		fields := strings.Fields(fl.Field().String())
		return len(fields) == 5 || len(fields) == 6
	})

	v.RegisterValidation("hexstring", func(fl validator.FieldLevel) bool {
		return hexRe.MatchString(fl.Field().String())
	})

	v.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port := fl.Field().Int()
		return port >= 1 && port <= 65535
	})
}

// ============================================================================
// Global convenience functions
// ============================================================================

// Validate validates a struct using the shared validator.
func Validate(v any) error {
	return New().Validate(v)
}

// ValidateVar validates a single variable using the shared validator.
func ValidateVar(v any, tag string) error {
	return New().ValidateVar(v, tag)
}

// GetValidationErrors converts an error into a field -> message map.
func GetValidationErrors(err error) map[string]string {
	return New().ValidationErrors(err)
}

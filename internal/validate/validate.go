// Package validate wraps go-playground/validator and reports failures as
// field-level errs.ValidationError keyed by JSON field name.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/go-playground/validator/v10"
)

var (
	v          = validator.New(validator.WithRequiredStructEnabled())
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

func init() {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"min":      "must be at least %s characters long",
	"max":      "must be no longer than %s characters",
	"oneof":    "must be one of: %s",
	"username": "may contain only letters, digits, '.', '_' and '-'",
}

func message(e validator.FieldError) string {
	msg, ok := messages[e.Tag()]
	if !ok {
		return "is invalid (" + e.Tag() + ")"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, e.Param())
	}
	return msg
}

// Struct validates s and returns nil or a *errs.ValidationError.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &errs.ValidationError{Fields: make(map[string]string, len(ves))}
	for _, e := range ves {
		out.Fields[e.Field()] = message(e)
	}
	return out
}

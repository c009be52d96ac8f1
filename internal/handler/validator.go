package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-procurement/internal/service"
)

// Validator adapts go-playground/validator to echo.Validator.  The
// "strongpw" tag applies service.CheckPasswordPolicy.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("strongpw", func(fl validator.FieldLevel) bool {
		return service.CheckPasswordPolicy(fl.Field().String()) == nil
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validationError is a 400 carrying per-field messages.
type validationError struct {
	msg    string
	fields []fieldError
}

func (e *validationError) Error() string { return e.msg }

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "strongpw":
		if pw, _ := fe.Value().(string); errors.Is(service.CheckPasswordPolicy(pw), service.ErrPasswordTooLong) {
			return "must be at most 72 bytes"
		}
		return "must be at least 8 characters and contain upper, lower, digit and special characters"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "is invalid"
}

// bind decodes the request body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return &validationError{msg: "Invalid request body"}
	}
	err := c.Validate(dst)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return &validationError{msg: "Invalid request body"}
	}
	out := &validationError{msg: "Validation failed"}
	for _, fe := range ves {
		out.fields = append(out.fields, fieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	if len(out.fields) == 1 {
		out.msg = out.fields[0].Field + " " + out.fields[0].Message
	}
	return out
}

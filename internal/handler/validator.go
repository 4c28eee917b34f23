package handler

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// RequestValidator plugs go-playground/validator into echo.  Failures
// come back as *model.ValidationError named by the JSON field.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator registers the custom tags used by request DTOs.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 5 || s[2] != ':' {
			return false
		}
		h, err1 := strconv.Atoi(s[:2])
		m, err2 := strconv.Atoi(s[3:])
		return err1 == nil && err2 == nil && h >= 0 && h < 24 && m >= 0 && m < 60
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := model.ParseDate(fl.Field().String())
		return err == nil
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:], describe(fe))
	}
	return model.NewValidationError("", err.Error())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "email":
		return "must be an email address"
	case "oneof":
		return "must be one of " + fe.Param()
	case "clock":
		return "must be HH:MM"
	case "date":
		return "must be YYYY-MM-DD"
	}
	return "failed " + fe.Tag()
}

// bind decodes the body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return model.NewValidationError("", "malformed request body")
	}
	return c.Validate(dst)
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, model.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

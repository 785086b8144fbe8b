package handler

import (
    "errors"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lingua-enrollment/internal/service"
)

// RequestValidator plugs validator/v10 into echo.  Install it with
// e.Validator = handler.NewRequestValidator().
type RequestValidator struct {
    v *validator.Validate
}

// NewRequestValidator reports field names by their json tag.
func NewRequestValidator() *RequestValidator {
    v := validator.New()
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
    return rv.v.Struct(i)
}

// bindAndValidate decodes the body into dst and runs the struct tags.
// Failures come back as *service.ValidationError.
func bindAndValidate(c echo.Context, dst interface{}) error {
    if err := c.Bind(dst); err != nil {
        return &service.ValidationError{Message: "invalid request body"}
    }
    if c.Echo().Validator == nil {
        return nil
    }
    err := c.Validate(dst)
    if err == nil {
        return nil
    }
    var verrs validator.ValidationErrors
    if errors.As(err, &verrs) && len(verrs) > 0 {
        fe := verrs[0]
        return &service.ValidationError{Field: fe.Field(), Message: describeTag(fe)}
    }
    return &service.ValidationError{Message: err.Error()}
}

func describeTag(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return "is required"
    case "email":
        return "must be a valid email address"
    case "min":
        return "must have at least " + fe.Param() + " entries"
    case "max":
        return "must be at most " + fe.Param()
    case "oneof":
        return "must be one of " + fe.Param()
    }
    return "is invalid"
}

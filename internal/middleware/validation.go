package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/homecare-notify/internal/model"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var errorMessages = map[string]string{
	"required":     "Field is required",
	"channel":      "Must be sms or email",
	"contact_type": "Must be all, staff, client, vendor, referral_source or other",
	"oneof":        "Value is not allowed",
	"min":          "Value is too small",
	"max":          "Value is too large",
}

// RegisterValidators installs the custom tags on gin's validator engine and reports
// field names by their json tag.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return model.Channel(fl.Field().String()).IsValid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("contact_type", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || s == model.RecipientFilterAll || model.ContactType(s).IsValid()
	})
}

// ValidationErrors flattens binding errors into field messages. It returns nil for
// errors that are not validation failures.
func ValidationErrors(err error) []ValidationError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		msg := errorMessages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		out = append(out, ValidationError{Field: e.Field(), Message: msg})
	}
	return out
}

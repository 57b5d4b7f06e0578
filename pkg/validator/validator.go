// Package validator wraps go-playground/validator with the field naming and
// custom rules used by request payloads.
package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/charlesng35/blotter/pkg/crypto"
)

// ValidationError is one failed rule. Field is the JSON name; Kind is the Go
// kind of the value so callers can word length and range failures apart.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
	Kind  string `json:"-"`
}

// ValidationErrors is every failed rule for one payload.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Field + " failed on " + f.Tag)
		if f.Param != "" {
			b.WriteString("=" + f.Param)
		}
	}
	return b.String()
}

// rules are the project-specific tags available to every payload.
var rules = map[string]func(string) bool{
	"pin":   crypto.ValidPIN,
	"phone": validPhone,
}

var engine = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	for tag, check := range rules {
		check := check
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		}); err != nil {
			panic("validator: register " + tag + ": " + err.Error())
		}
	}
	return v
})

// ValidateStruct checks s against its validate tags. Rule failures come back
// as ValidationErrors; anything else (such as a non-struct) is returned as is.
func ValidateStruct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = ValidationError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
			Kind:  fe.Kind().String(),
		}
	}
	return out
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

// validPhone accepts loosely formatted numbers: an optional leading '+',
// then digits with spaces, dashes, dots or parentheses, 7 to 15 digits total.
func validPhone(value string) bool {
	value = strings.TrimPrefix(strings.TrimSpace(value), "+")
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(" -.()", r):
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

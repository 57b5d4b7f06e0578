package handlers

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/response"
	appValidator "github.com/charlesng35/blotter/pkg/validator"
)

const genericPayloadError = "invalid request payload"

// ruleMessages renders one failed rule for a prettified field name.
var ruleMessages = map[string]func(field string, f appValidator.ValidationError) string{
	"required": func(field string, _ appValidator.ValidationError) string {
		return field + " is required"
	},
	"email": func(field string, _ appValidator.ValidationError) string {
		return field + " must be a valid email address"
	},
	"min": func(field string, f appValidator.ValidationError) string {
		return fmt.Sprintf("%s must be at least %s%s", field, f.Param, lengthUnit(f.Kind))
	},
	"max": func(field string, f appValidator.ValidationError) string {
		return fmt.Sprintf("%s must be at most %s%s", field, f.Param, lengthUnit(f.Kind))
	},
	"pin": func(field string, _ appValidator.ValidationError) string {
		return field + " must be a 6-digit code"
	},
	"phone": func(field string, _ appValidator.ValidationError) string {
		return field + " must be a phone number"
	},
}

// bindAndValidate decodes the JSON body into dest and validates it. On failure
// the 400 response is already written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		msg := "invalid JSON payload"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		response.Error(c, appErrors.NewBadRequest(msg))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return genericPayloadError
	}

	messages := make([]string, len(failures))
	for i, f := range failures {
		field := prettifyFieldName(f.Field)
		if render, ok := ruleMessages[f.Tag]; ok {
			messages[i] = render(field, f)
			continue
		}
		rule := f.Tag
		if f.Param != "" {
			rule += "=" + f.Param
		}
		messages[i] = fmt.Sprintf("%s failed validation: %s", field, rule)
	}
	return strings.Join(messages, "; ")
}

// lengthUnit words min/max failures: strings count characters, numbers do not.
func lengthUnit(kind string) string {
	if kind == "string" {
		return " characters"
	}
	return ""
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}

// parseIntQuery reads a non-negative integer query parameter, returning
// fallback when it is absent or malformed.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type linkRequest struct {
	CaseID    string `json:"case_id" validate:"required"`
	Email     string `json:"recipient_email" validate:"omitempty,email"`
	Phone     string `json:"recipient_phone" validate:"omitempty,phone"`
	Hours     int    `json:"duration_hours" validate:"min=1"`
	Untagged  string `validate:"max=3"`
	Internals string `json:"-" validate:"max=3"`
}

func failures(t *testing.T, err error) ValidationErrors {
	t.Helper()
	var out ValidationErrors
	require.True(t, errors.As(err, &out), "expected ValidationErrors, got %v", err)
	return out
}

func TestValidateStructAcceptsValidPayload(t *testing.T) {
	require.NoError(t, ValidateStruct(linkRequest{CaseID: "c-1", Email: "witness@example.com", Hours: 24}))
}

func TestValidateStructReportsJSONNames(t *testing.T) {
	err := ValidateStruct(linkRequest{Email: "nope", Hours: 0, Untagged: "long", Internals: "long"})

	got := map[string]ValidationError{}
	for _, f := range failures(t, err) {
		got[f.Field] = f
	}
	require.Len(t, got, 5)
	require.Equal(t, "required", got["case_id"].Tag)
	require.Equal(t, "email", got["recipient_email"].Tag)
	require.Equal(t, ValidationError{Field: "duration_hours", Tag: "min", Param: "1", Kind: "int"}, got["duration_hours"])
	require.Equal(t, "string", got["Untagged"].Kind)
	require.Contains(t, got, "Internals")
}

func TestValidationErrorsMessage(t *testing.T) {
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
	require.Equal(t, "pin failed on pin; duration_hours failed on min=1", ValidationErrors{
		{Field: "pin", Tag: "pin"},
		{Field: "duration_hours", Tag: "min", Param: "1"},
	}.Error())
}

func TestPinRule(t *testing.T) {
	type unlock struct {
		PIN string `json:"pin" validate:"required,pin"`
	}

	require.NoError(t, ValidateStruct(unlock{PIN: "048213"}))
	for _, bad := range []string{"12345", "1234567", "12345x", "１２３４５６"} {
		got := failures(t, ValidateStruct(unlock{PIN: bad}))
		require.Len(t, got, 1, bad)
		require.Equal(t, "pin", got[0].Tag)
	}
}

func TestPhoneRule(t *testing.T) {
	for _, ok := range []string{"+63 917 555 0199", "(02) 8123-4567", "0917.555.0199"} {
		require.True(t, validPhone(ok), ok)
	}
	for _, bad := range []string{"12345", "call me", "+63 917 555 0199 ext 2", "1234567890123456"} {
		require.False(t, validPhone(bad), bad)
	}
	require.NoError(t, ValidateStruct(linkRequest{CaseID: "c-1", Hours: 1}))
}

func TestValidateStructRejectsNonStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	require.Error(t, err)
	var out ValidationErrors
	require.False(t, errors.As(err, &out))
}

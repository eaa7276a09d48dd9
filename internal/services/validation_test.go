package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type testPayload struct {
	Name     string `json:"name" validate:"required,min=2"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&testPayload{Name: "Operating", Currency: "USD"})
		assert.NoError(t, err)
	})

	t.Run("collects all failing fields", func(t *testing.T) {
		err := vh.ValidateStruct(&testPayload{Name: "X", Currency: "DOLLARS"})
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 2)
	})
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name": "Operating"}`))
		w := httptest.NewRecorder()

		var dst testPayload
		err := DecodeJSONBody(w, r, &dst)
		assert.NoError(t, err)
		assert.Equal(t, "Operating", dst.Name)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name": "Operating", "balance": "100"}`))
		w := httptest.NewRecorder()

		var dst testPayload
		err := DecodeJSONBody(w, r, &dst)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("trailing object is rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name": "Operating"}{"name": "Second"}`))
		w := httptest.NewRecorder()

		var dst testPayload
		err := DecodeJSONBody(w, r, &dst)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`not json`))
		w := httptest.NewRecorder()

		var dst testPayload
		err := DecodeJSONBody(w, r, &dst)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("includes validation details", func(t *testing.T) {
		vh := NewValidationHelper()
		err := vh.ValidateStruct(&testPayload{})

		rec := httptest.NewRecorder()
		SendErrorResponse(rec, "Validation failed", http.StatusBadRequest, err)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "Validation failed")
		assert.Contains(t, rec.Body.String(), "Name")
	})

	t.Run("plain error has no details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SendErrorResponse(rec, "Account not found", http.StatusNotFound, nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotContains(t, rec.Body.String(), "details")
	})
}

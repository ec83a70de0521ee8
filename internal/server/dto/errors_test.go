package dto

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError(t *testing.T) {
	t.Run("NewAPIError", func(t *testing.T) {
		err := NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "resource not found")
		assert.Equal(t, http.StatusNotFound, err.StatusCode())
		assert.Equal(t, ErrorCodeNotFound, err.Code())
		assert.Equal(t, "resource not found", err.Error())
		assert.NotNil(t, err.Details())
	})
	t.Run("WithDetails", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusBadRequest, code: ErrorCodeValidationFailed, message: "test"}).
			WithDetails(map[string]any{"field": "name", "reason": "empty"})
		assert.Equal(t, "name", err.Details()["field"])
		assert.Equal(t, "empty", err.Details()["reason"])
	})
	t.Run("WithDetail", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusBadRequest, code: ErrorCodeValidationFailed, message: "test"}).
			WithDetail("key", "value")
		assert.Equal(t, "value", err.Details()["key"])
	})
	t.Run("Wrap", func(t *testing.T) {
		origErr := errors.New("original error")
		err := NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, "wrapped error").Wrap(origErr)
		assert.Equal(t, origErr, err.Unwrap())
		assert.True(t, errors.Is(err, origErr))
		assert.Equal(t, "wrapped error: original error", err.Error())
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
	}{
		{"NotFound", NotFound("record 3"), http.StatusNotFound, ErrorCodeNotFound},
		{"BadRequest", BadRequest("bad"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"InvalidField", InvalidField("name", "name required"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"InvalidFormat", InvalidFormat("id", "must be a positive integer"), http.StatusBadRequest, ErrorCodeInvalidFormat},
		{"MissingField", MissingField("file"), http.StatusBadRequest, ErrorCodeMissingField},
		{"CorruptStore", CorruptStore("data.xlsx"), http.StatusInternalServerError, ErrorCodeCorruptStore},
		{"IncompatibleUpload", IncompatibleUpload("missing column"), http.StatusUnprocessableEntity, ErrorCodeIncompatibleUpload},
		{"PayloadTooLarge", PayloadTooLarge(1024), http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge},
		{"RateLimitExceeded", RateLimitExceeded(5), http.StatusTooManyRequests, ErrorCodeRateLimitExceeded},
		{"InternalWithError", InternalWithError("boom", errors.New("disk full")), http.StatusInternalServerError, ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.code, tt.err.Code())
			assert.NotEmpty(t, tt.err.Error())
		})
	}

	assert.Equal(t, "record 3 not found", NotFound("record 3").Error())
	assert.Equal(t, "name", InvalidField("name", "name required").Details()["field"])
	assert.Equal(t, int64(1024), PayloadTooLarge(1024).Details()["limit_bytes"])
	assert.Equal(t, 5, RateLimitExceeded(5).Details()["retry_after_seconds"])
	assert.Contains(t, CorruptStore("data.xlsx").Error(), "data.xlsx")
}

func TestErrorWithStatusInterface(t *testing.T) {
	var err error = NotFound("x")
	var ews ErrorWithStatus
	assert.True(t, errors.As(err, &ews))
	assert.Equal(t, http.StatusNotFound, ews.StatusCode())
}

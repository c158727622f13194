package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCause_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrStorage.WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorage(err))
	assert.Contains(t, err.Error(), "STORAGE_ERROR")
	assert.Contains(t, err.Error(), "disk full")
}

func TestWithCause_DoesNotMutateSentinel(t *testing.T) {
	_ = ErrValidation.WithCause(errors.New("boom"))
	assert.Nil(t, ErrValidation.Cause)
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, ToHTTPStatus(ErrValidation))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(ErrStorage))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("plain")))
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrValidation.WithDetail("message", "limit must be an integer"))

	errBody, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	assert.NotNil(t, errBody["details"])
}

func TestToErrorResponse_WrapsUnknown(t *testing.T) {
	resp := ToErrorResponse(errors.New("plain"))

	errBody, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "INTERNAL_ERROR", errBody["code"])
}

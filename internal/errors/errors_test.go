package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorImplementsError(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", err.ErrorCode)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, FusionError(assert.AnError))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Success bool      `json:"success"`
		Error   *APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "FUSION_FAILED", body.Error.ErrorCode)
	assert.Equal(t, assert.AnError.Error(), body.Error.Details)
}

func TestConfigUpdateError(t *testing.T) {
	err := ConfigUpdateError(assert.AnError)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "CONFIG_UPDATE_REJECTED", err.ErrorCode)
}

func TestNormalizationErrorCarriesDetails(t *testing.T) {
	err := NormalizationError([]string{"normalization error: malformed payload"})
	assert.Equal(t, http.StatusUnprocessableEntity, err.StatusCode)
	details, ok := err.Details.([]string)
	require.True(t, ok)
	assert.Len(t, details, 1)
}

package errors_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairclaim/protest-engine/pkg/errors"
)

func TestHTTPStatusForCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.ErrCodePropertyNotFound, http.StatusNotFound},
		{errors.ErrCodeInsufficientData, http.StatusUnprocessableEntity},
		{errors.ErrCodeAdjustmentOutOfRange, http.StatusBadRequest},
		{errors.ErrCodeInvalidAmount, http.StatusBadRequest},
		{errors.ErrCodeAnalysisNotReady, http.StatusConflict},
		{errors.ErrCodeInvalidTransition, http.StatusConflict},
		{errors.ErrCodeSessionFinalized, http.StatusConflict},
		{errors.ErrCodeSessionNotFound, http.StatusNotFound},
		{errors.ErrCodeDataSourceUnavailable, http.StatusServiceUnavailable},
		{errors.ErrCodeAIResponseInvalid, http.StatusBadGateway},
		{errors.ErrorCode("BOGUS_999"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, errors.HTTPStatusForCode(tc.code), string(tc.code))
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "property not found", errors.DefaultMessageForCode(errors.ErrCodePropertyNotFound))
	assert.Equal(t, "insufficient data for valuation", errors.DefaultMessageForCode(errors.ErrCodeInsufficientData))
	assert.Equal(t, "unknown error", errors.DefaultMessageForCode(errors.ErrorCode("BOGUS_999")))
}

func TestClientServerErrorClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsClientError(errors.ErrCodeInvalidAmount))
	assert.True(t, errors.IsClientError(errors.ErrCodePropertyNotFound))
	assert.False(t, errors.IsClientError(errors.ErrCodeDatabaseError))

	assert.True(t, errors.IsServerError(errors.ErrCodeDatabaseError))
	assert.True(t, errors.IsServerError(errors.ErrCodeReportGenerationFailed))
	assert.False(t, errors.IsServerError(errors.ErrCodeAnalysisNotReady))
}

func TestModuleForCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "PROP", errors.ModuleForCode(errors.ErrCodePropertyNotFound))
	assert.Equal(t, "VAL", errors.ModuleForCode(errors.ErrCodeInsufficientData))
	assert.Equal(t, "WF", errors.ModuleForCode(errors.ErrCodeAnalysisNotReady))
	assert.Equal(t, "COMMON", errors.ModuleForCode(errors.ErrCodeInternal))
	assert.Equal(t, "UNKNOWN", errors.ModuleForCode(errors.ErrorCode("")))
}

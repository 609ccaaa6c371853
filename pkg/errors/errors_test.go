// Package errors_test provides unit tests for the AppError type, factory
// functions, and error-chain helpers defined in pkg/errors.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairclaim/protest-engine/pkg/errors"
)

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.ErrCodeInternal, "unexpected failure"},
		{"property not found", errors.ErrCodePropertyNotFound, "account 0660640130020 not found"},
		{"invalid amount", errors.ErrCodeInvalidAmount, "amount must not be negative"},
		{"analysis not ready", errors.ErrCodeAnalysisNotReady, "run the analysis first"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail, "Detail should be empty for bare New()")
			assert.Nil(t, ae.Cause, "Cause should be nil for bare New()")
		})
	}
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	result := errors.Wrap(nil, errors.ErrCodeInternal, "should not matter")
	assert.Nil(t, result)
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("root DB error")
	wrapped := errors.Wrap(root, errors.ErrCodeDatabaseError, "connection failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.ErrCodeDatabaseError, wrapped.Code)
	assert.Equal(t, "connection failed", wrapped.Message)
	assert.Equal(t, root, wrapped.Cause)
	assert.Equal(t, root, stderrors.Unwrap(wrapped))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodePropertyNotFound, "not found")
	outer := errors.Wrap(inner, errors.CodeUnknown, "adding context")

	require.NotNil(t, outer)
	assert.Equal(t, errors.ErrCodePropertyNotFound, outer.Code,
		"Wrap with CodeUnknown should inherit the inner AppError's code")
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodePropertyNotFound, "not found")
	outer := errors.Wrap(inner, errors.ErrCodeInternal, "unexpected state")

	assert.Equal(t, errors.ErrCodeInternal, outer.Code,
		"explicit code must override the inner code")
}

func TestWrap_MultiLevel(t *testing.T) {
	t.Parallel()

	root := stderrors.New("dial tcp: connection refused")
	level1 := errors.Wrap(root, errors.ErrCodeDatabaseError, "postgres unreachable")
	level2 := errors.Wrap(level1, errors.ErrCodeInternal, "failed to load session")

	assert.Equal(t, level1, stderrors.Unwrap(level2))
	assert.Equal(t, root, stderrors.Unwrap(level1))
}

func TestError_FormatWithAndWithoutDetail(t *testing.T) {
	t.Parallel()

	bare := errors.New(errors.ErrCodePropertyNotFound, "property not found")
	assert.Contains(t, bare.Error(), "PROP_001")
	assert.Contains(t, bare.Error(), "property not found")

	detailed := bare.WithDetail("acct=0660640130020")
	assert.Contains(t, detailed.Error(), "acct=0660640130020")
}

func TestWithDetail_SetsDetailOnCopy(t *testing.T) {
	t.Parallel()

	original := errors.New(errors.ErrCodeNotFound, "resource missing")
	detailed := original.WithDetail("id=42")

	assert.Empty(t, original.Detail, "WithDetail must not mutate the original")
	assert.Equal(t, "id=42", detailed.Detail)
	assert.Equal(t, original.Code, detailed.Code)
}

func TestWithDetail_NilReceiverReturnsNil(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

func TestWithCause_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	original := errors.New(errors.ErrCodeInternal, "failure")
	cause := stderrors.New("cause")
	withCause := original.WithCause(cause)

	assert.Nil(t, original.Cause, "WithCause must not mutate the original")
	assert.Equal(t, cause, withCause.Cause)
	assert.True(t, stderrors.Is(withCause, cause))
}

func TestIsCode_NestedChain(t *testing.T) {
	t.Parallel()

	root := errors.New(errors.ErrCodeDatabaseError, "db down")
	wrapped := errors.Wrap(root, errors.ErrCodeInternal, "service error")

	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeDatabaseError),
		"IsCode must find the code anywhere in the error chain")
	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeInternal))
	assert.False(t, errors.IsCode(wrapped, errors.ErrCodeForbidden))
}

func TestIsCode_NilAndStdlibErrors(t *testing.T) {
	t.Parallel()

	assert.False(t, errors.IsCode(nil, errors.ErrCodeInternal))
	assert.False(t, errors.IsCode(stderrors.New("plain"), errors.ErrCodeInternal))
}

func TestGetCode_OutermostWins(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeInsufficientData, "no comparables")
	outer := errors.Wrap(inner, errors.ErrCodeInternal, "analysis failed")

	assert.Equal(t, errors.ErrCodeInternal, errors.GetCode(outer))
	assert.Equal(t, errors.ErrCodeInsufficientData, errors.GetCode(inner))
}

func TestGetCode_NilAndUnknown(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("some stdlib error")))
	assert.Equal(t, errors.CodeUnknown,
		errors.GetCode(fmt.Errorf("context: %w", stderrors.New("cause"))))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodePropertyNotFound, "x")))
	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeSessionNotFound, "x")))
	assert.True(t, errors.IsNotFound(errors.NotFound("x")))
	assert.True(t, errors.IsNotFound(
		errors.Wrap(errors.New(errors.ErrCodeReportNotFound, "x"), errors.ErrCodeInternal, "ctx")))
	assert.False(t, errors.IsNotFound(errors.New(errors.ErrCodeInvalidAmount, "x")))
	assert.False(t, errors.IsNotFound(nil))
}

func TestConvenienceFactories_ReturnCorrectCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		err      *errors.AppError
		wantCode errors.ErrorCode
	}{
		{"NotFound", errors.NotFound("not found"), errors.ErrCodeNotFound},
		{"InvalidParam", errors.InvalidParam("bad input"), errors.ErrCodeBadRequest},
		{"NewValidation", errors.NewValidation("field %s is required", "amount"), errors.ErrCodeValidation},
		{"InvalidState", errors.InvalidState("session finalized"), errors.ErrCodeConflict},
		{"Internal", errors.Internal("server error"), errors.ErrCodeInternal},
		{"Conflict", errors.Conflict("duplicate resource"), errors.ErrCodeConflict},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.NotNil(t, tc.err)
			assert.Equal(t, tc.wantCode, tc.err.Code)
			assert.NotEmpty(t, tc.err.Message)
			assert.NotEmpty(t, tc.err.Error())
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	t.Parallel()

	ae := errors.Newf(errors.ErrCodeAdjustmentOutOfRange, "rate %.2f%% outside [%.2f%%, %.2f%%]", 5.0, 0.5, 3.5)
	assert.Equal(t, "rate 5.00% outside [0.50%, 3.50%]", ae.Message)
}

func TestStdlib_ErrorsAs_ExtractsAppError(t *testing.T) {
	t.Parallel()

	original := errors.New(errors.ErrCodeAnalysisNotReady, "analysis pending")
	wrapped := fmt.Errorf("workflow: %w", original)

	var ae *errors.AppError
	require.True(t, stderrors.As(wrapped, &ae),
		"errors.As must be able to extract *AppError from a wrapped chain")
	assert.Equal(t, errors.ErrCodeAnalysisNotReady, ae.Code)
	assert.Equal(t, "analysis pending", ae.Message)
}

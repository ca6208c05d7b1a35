package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("finalize: %w", NewPartialFailureError("PAY-1", stderrors.New("boom")))

	assert.True(t, stderrors.Is(err, ErrPartialFailure))
	assert.False(t, stderrors.Is(err, ErrTransportFailed))
	assert.Equal(t, ErrCodePartialFailure, CodeOf(err))
}

func TestStandardError_UnwrapReachesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewTransportFailedError("create application", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.Retryable)
}

func TestPartialFailure_AlwaysCarriesReference(t *testing.T) {
	err := NewPartialFailureError("PAY-REF-42", nil)

	assert.Contains(t, err.Message, "PAY-REF-42")
	assert.Equal(t, "PAY-REF-42", err.Metadata["paymentReference"])
	assert.Contains(t, ConvertToBPMNError(err).Message, "PAY-REF-42")
}

func TestUserMessage_FieldErrorsAreSorted(t *testing.T) {
	err := NewValidationFailedError("Fix these", map[string]string{
		"phone": "invalid",
		"email": "required",
	})
	assert.Equal(t, "Fix these (email: required; phone: invalid)", err.UserMessage())
}

func TestConvertToBPMNError_Retries(t *testing.T) {
	tests := []struct {
		name    string
		err     *StandardError
		retries int
	}{
		{"transport", NewTransportFailedError("poll", nil), 3},
		{"documents", NewDocumentUploadFailedError("app-1", nil), 2},
		{"partial failure is not blindly retried", NewPartialFailureError("ref", nil), 0},
		{"validation", NewValidationFailedError("", nil), 0},
		{"rejected", NewPaymentRejectedError("", "bad phone"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.retries, b.Retries)
			assert.Equal(t, string(tt.err.Code), b.Code)
		})
	}
}

func TestNormalize_UnknownErrorIsNotRetryable(t *testing.T) {
	se := Normalize(stderrors.New("plain"))
	require.NotNil(t, se)
	assert.False(t, se.Retryable)
	assert.Equal(t, "OTHER", GetErrorCategory(se.Code))
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_IsTerminal(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []PaymentStatus{PaymentStatusInitiated, PaymentStatusPending, PaymentStatusProcessing, "unknown"} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestPaymentStatusResponse_Reason(t *testing.T) {
	assert.Equal(t, "insufficient funds", PaymentStatusResponse{Status: PaymentStatusFailed, FailureReason: "insufficient funds", ResultDesc: "x"}.Reason())
	assert.Equal(t, "Request cancelled by user", PaymentStatusResponse{Status: PaymentStatusCancelled, ResultDesc: "Request cancelled by user"}.Reason())
	assert.Equal(t, "payment expired", PaymentStatusResponse{Status: PaymentStatusExpired}.Reason())
}

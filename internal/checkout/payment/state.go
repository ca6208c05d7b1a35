package payment

import "insurance-checkout/internal/models"

// State is the session state. Idle is re-entered only through Retry.
type State string

const (
	StateIdle       State = "idle"
	StateInitiating State = "initiating"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateExpired    State = "expired"
)

func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateExpired:
		return true
	}
	return false
}

func (s State) paymentStatus() models.PaymentStatus {
	switch s {
	case StateInitiating:
		return models.PaymentStatusInitiated
	case StateProcessing:
		return models.PaymentStatusProcessing
	case StateCompleted:
		return models.PaymentStatusCompleted
	case StateFailed:
		return models.PaymentStatusFailed
	case StateCancelled:
		return models.PaymentStatusCancelled
	case StateExpired:
		return models.PaymentStatusExpired
	}
	return ""
}

// terminalFor maps a remote status to the terminal state it forces, if any.
func terminalFor(status models.PaymentStatus) (State, bool) {
	switch status {
	case models.PaymentStatusCompleted:
		return StateCompleted, true
	case models.PaymentStatusFailed:
		return StateFailed, true
	case models.PaymentStatusCancelled:
		return StateCancelled, true
	case models.PaymentStatusExpired:
		return StateExpired, true
	}
	return "", false
}

package finalizeapplication

import (
	"context"

	"insurance-checkout/internal/checkout/finalize"
	"insurance-checkout/internal/models"
)

// Input is a completed payment whose application has not been submitted,
// typically after a PARTIAL_FAILURE from process-payment.
type Input struct {
	ApplicationID     string               `json:"applicationId"`
	ApplicationNumber string               `json:"applicationNumber,omitempty"`
	PremiumAmount     int64                `json:"premiumAmount,omitempty"`
	Payment           models.PaymentResult `json:"payment"`
	Documents         models.DocumentSet   `json:"documents,omitempty"`
}

func (i *Input) Application() *models.Application {
	return &models.Application{
		ID:            i.ApplicationID,
		Number:        i.ApplicationNumber,
		Status:        models.ApplicationStatusPendingPayment,
		PremiumAmount: i.PremiumAmount,
	}
}

type Output struct {
	ApplicationStatus string `json:"applicationStatus"`
	Skipped           bool   `json:"skipped"`
	DocumentsUploaded int    `json:"documentsUploaded"`
	DocumentError     string `json:"documentError,omitempty"`
}

// Finalizer is satisfied by *finalize.Orchestrator.
type Finalizer interface {
	OnPaymentCompleted(ctx context.Context, app *models.Application, result models.PaymentResult, docs models.DocumentSet) (*finalize.Outcome, error)
}

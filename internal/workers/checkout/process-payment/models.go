package processpayment

import (
	"context"

	"insurance-checkout/internal/models"
)

type Input struct {
	SubmissionID string              `json:"submissionId"`
	PhoneNumber  string              `json:"phoneNumber"`
	Form         models.FormSnapshot `json:"form"`
	Documents    models.DocumentSet  `json:"documents,omitempty"`
}

// Snapshot returns the form keyed by the job's submission id.
func (i *Input) Snapshot() *models.FormSnapshot {
	snap := i.Form
	snap.SubmissionID = i.SubmissionID
	return &snap
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber,omitempty"`
	ApplicationStatus string `json:"applicationStatus"`
	PaymentStatus     string `json:"paymentStatus"`
	PaymentReference  string `json:"paymentReference,omitempty"`
	ReceiptNumber     string `json:"receiptNumber,omitempty"`
	DocumentsUploaded int    `json:"documentsUploaded"`
	DocumentError     string `json:"documentError,omitempty"`
}

// Service runs one checkout to completion.
type Service interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

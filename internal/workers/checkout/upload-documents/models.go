package uploaddocuments

import (
	"context"

	"insurance-checkout/internal/models"
)

type Input struct {
	ApplicationID string             `json:"applicationId"`
	Documents     models.DocumentSet `json:"documents"`
}

type Output struct {
	DocumentsUploaded int `json:"documentsUploaded"`
	DocumentsSkipped  int `json:"documentsSkipped"`
}

// Uploader is satisfied by *finalize.Orchestrator.
type Uploader interface {
	UploadPendingDocuments(ctx context.Context, applicationID string, docs models.DocumentSet) (*models.UploadResult, error)
}

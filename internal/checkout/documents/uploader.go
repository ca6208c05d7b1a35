// Package documents uploads the files a customer attached during the wizard.
package documents

import (
	"context"
	"fmt"
	"io"

	"insurance-checkout/internal/backend"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/models"
)

// Backend is the document half of the brokerage API.
type Backend interface {
	ListDocuments(ctx context.Context, applicationID string) ([]models.ExistingDocument, error)
	UploadDocuments(ctx context.Context, applicationID string, files []backend.UploadFile) error
}

// Source opens the bytes behind a Document's storage reference.
type Source interface {
	Open(ctx context.Context, doc models.Document) (io.ReadCloser, error)
}

type Uploader struct {
	backend Backend
	source  Source
	logger  logger.Logger
}

func NewUploader(b Backend, src Source, log logger.Logger) *Uploader {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Uploader{
		backend: b,
		source:  src,
		logger:  log.WithFields(map[string]interface{}{"component": "document_uploader"}),
	}
}

// Upload sends every document whose type is not already stored for the
// application, in one multipart request. A failed lookup of existing
// documents is logged and the full set is sent.
func (u *Uploader) Upload(ctx context.Context, applicationID string, docs models.DocumentSet) (*models.UploadResult, error) {
	result := &models.UploadResult{}
	if len(docs) == 0 {
		return result, nil
	}

	log := u.logger.WithFields(map[string]interface{}{"applicationId": applicationID})

	existing := map[string]bool{}
	stored, err := u.backend.ListDocuments(ctx, applicationID)
	if err != nil {
		log.Warn("existing documents lookup failed, uploading full set", map[string]interface{}{"error": err})
	}
	for _, d := range stored {
		existing[d.DocumentType] = true
	}

	var files []backend.UploadFile
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	for _, docType := range docs.Types() {
		if existing[docType] {
			result.Skipped = append(result.Skipped, docType)
			continue
		}
		doc := docs[docType]
		rc, err := u.source.Open(ctx, doc)
		if err != nil {
			return result, errors.NewDocumentUploadFailedError(applicationID, fmt.Errorf("open %s: %w", docType, err))
		}
		closers = append(closers, rc)
		files = append(files, backend.UploadFile{
			DocumentType: docType,
			Name:         doc.Name,
			MediaType:    doc.MediaType,
			Content:      rc,
		})
	}

	if len(files) == 0 {
		log.Debug("all documents already stored", map[string]interface{}{"skipped": result.Skipped})
		return result, nil
	}

	if err := u.backend.UploadDocuments(ctx, applicationID, files); err != nil {
		if errors.CodeOf(err) == errors.ErrCodeDocumentUploadFailed {
			return result, err
		}
		return result, errors.NewDocumentUploadFailedError(applicationID, err)
	}

	for _, f := range files {
		result.Uploaded = append(result.Uploaded, f.DocumentType)
	}
	log.Info("documents sent", map[string]interface{}{
		"uploaded": result.Uploaded,
		"skipped":  result.Skipped,
	})
	return result, nil
}

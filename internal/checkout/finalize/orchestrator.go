// Package finalize submits an application once its payment has settled and
// hands its documents to the uploader. A single-shot latch keeps the sequence
// from running twice when the completion signal is observed more than once.
package finalize

import (
	"context"
	"fmt"
	"time"

	"insurance-checkout/internal/common/clock"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/common/metrics"
	"insurance-checkout/internal/common/observability"
	"insurance-checkout/internal/models"
)

// Updater sends the status transition.
type Updater interface {
	UpdateApplication(ctx context.Context, applicationID string, update *models.ApplicationUpdate) (*models.Application, error)
}

// Uploader sends a document set, skipping types already on the backend.
type Uploader interface {
	Upload(ctx context.Context, applicationID string, docs models.DocumentSet) (*models.UploadResult, error)
}

// Notifier tells the customer their application was submitted.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// Alerter tells operations a payment needs manual reconciliation.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

type Options struct {
	Updater  Updater
	Uploader Uploader
	Latch    Latch
	Uploads  UploadTracker
	Ledger   Ledger
	Notifier Notifier
	Alerter  Alerter

	// LatchRetryDelay spaces attempts to mark the latch complete.
	LatchRetryDelay time.Duration

	Clock         clock.Clock
	Observability *observability.Observability
	Logger        logger.Logger
}

// Outcome describes one OnPaymentCompleted call. DocumentError is set when
// the application was submitted but its documents were not uploaded.
type Outcome struct {
	Application       *models.Application
	Skipped           bool
	DocumentsUploaded bool
	Upload            *models.UploadResult
	DocumentError     error
}

const (
	latchCompleteAttempts  = 3
	defaultLatchRetryDelay = 200 * time.Millisecond
)

type Orchestrator struct {
	updater  Updater
	uploader Uploader
	latch    Latch
	uploads  UploadTracker
	ledger   Ledger
	notifier Notifier
	alerter  Alerter
	clock    clock.Clock

	latchRetryDelay time.Duration
	obs      *observability.Observability
	logger   logger.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		updater:  opts.Updater,
		uploader: opts.Uploader,
		latch:    opts.Latch,
		uploads:  opts.Uploads,
		ledger:   opts.Ledger,
		notifier: opts.Notifier,
		alerter:  opts.Alerter,
		clock:    opts.Clock,
		obs:      opts.Observability,
		logger:   opts.Logger,

		latchRetryDelay: opts.LatchRetryDelay,
	}
	if o.latchRetryDelay <= 0 {
		o.latchRetryDelay = defaultLatchRetryDelay
	}
	if o.latch == nil {
		o.latch = NewMemoryLatch()
	}
	if o.uploads == nil {
		o.uploads = NewMemoryUploadTracker()
	}
	if o.clock == nil {
		o.clock = clock.NewReal()
	}
	if o.obs == nil {
		o.obs = observability.NewNoop()
	}
	if o.logger == nil {
		o.logger = logger.NewNoOpLogger()
	}
	o.logger = o.logger.WithFields(map[string]interface{}{"component": "finalize"})
	return o
}

// OnPaymentCompleted transitions app to submitted and uploads docs. A repeated
// call for the same application is a no-op reported as Skipped. Any failure
// before the transition lands, the latch store included, releases the latch,
// queues the payment for reconciliation and returns a PartialFailure carrying
// the payment reference.
func (o *Orchestrator) OnPaymentCompleted(ctx context.Context, app *models.Application, result models.PaymentResult, docs models.DocumentSet) (*Outcome, error) {
	if app == nil || app.ID == "" {
		return nil, errors.NewInvalidInputError("application is required for finalization")
	}
	if result.PaymentReference == "" {
		return nil, errors.NewInvalidInputError("payment reference is required for finalization")
	}

	log := o.logger.WithFields(map[string]interface{}{
		"applicationId":    app.ID,
		"paymentReference": result.PaymentReference,
	})

	entered, err := o.latch.Acquire(ctx, app.ID)
	if err != nil {
		return &Outcome{Application: app}, o.partialFailure(ctx, log, app, result, err)
	}
	if !entered {
		metrics.Finalizations.WithLabelValues("skipped").Inc()
		log.Info("finalization already entered, ignoring duplicate completion", nil)
		return &Outcome{Application: app, Skipped: true}, nil
	}

	submitted, err := o.submit(ctx, app, result)
	if err != nil {
		return &Outcome{Application: app}, o.partialFailure(ctx, log, app, result, err)
	}

	o.completeLatch(ctx, log, app.ID)
	if o.ledger != nil {
		if resolved, err := o.ledger.Resolve(ctx, app.ID, result.PaymentReference); err != nil {
			log.Warn("failed to resolve reconciliation entry", map[string]interface{}{"error": err})
		} else if resolved {
			log.Info("reconciliation entry resolved", nil)
		}
	}
	metrics.Finalizations.WithLabelValues("submitted").Inc()
	log.Info("application submitted", map[string]interface{}{"receiptNumber": result.ReceiptNumber})

	o.notify(ctx, log, submitted, result)

	outcome := &Outcome{Application: submitted}
	upload, err := o.uploadDocuments(ctx, log, app.ID, docs)
	outcome.Upload = upload
	if err != nil {
		outcome.DocumentError = err
	} else {
		outcome.DocumentsUploaded = upload != nil
	}
	return outcome, nil
}

// UploadPendingDocuments re-runs only the upload step for an application that
// has already been submitted.
func (o *Orchestrator) UploadPendingDocuments(ctx context.Context, applicationID string, docs models.DocumentSet) (*models.UploadResult, error) {
	if applicationID == "" {
		return nil, errors.NewInvalidInputError("applicationId is required to upload documents")
	}
	log := o.logger.WithFields(map[string]interface{}{"applicationId": applicationID})
	return o.uploadDocuments(ctx, log, applicationID, docs)
}

func (o *Orchestrator) submit(ctx context.Context, app *models.Application, result models.PaymentResult) (*models.Application, error) {
	ctx, end := o.obs.StartStep(ctx, "submit_application")

	now := o.clock.Now()
	update := &models.ApplicationUpdate{
		Status:           models.ApplicationStatusSubmitted,
		PaymentReference: result.PaymentReference,
		ReceiptNumber:    result.ReceiptNumber,
		TransactionDate:  result.TransactionDate,
		SubmittedAt:      &now,
	}
	updated, err := o.updater.UpdateApplication(ctx, app.ID, update)
	end(err)
	if err != nil {
		return nil, err
	}

	submitted := *app
	if updated != nil {
		submitted = *updated
	}
	if submitted.ID == "" {
		submitted.ID = app.ID
	}
	submitted.Status = models.ApplicationStatusSubmitted
	if submitted.PaymentReference == "" {
		submitted.PaymentReference = result.PaymentReference
	}
	if submitted.ReceiptNumber == "" {
		submitted.ReceiptNumber = result.ReceiptNumber
	}
	if submitted.SubmittedAt == nil {
		submitted.SubmittedAt = &now
	}
	return &submitted, nil
}

// completeLatch retries the done marker. An entry left in progress expires
// after its hold TTL and would let a late duplicate resubmit.
func (o *Orchestrator) completeLatch(ctx context.Context, log logger.Logger, applicationID string) {
	err := o.latch.Complete(ctx, applicationID)
	for attempt := 1; err != nil && attempt < latchCompleteAttempts; attempt++ {
		log.Warn("failed to mark finalization latch complete, retrying", map[string]interface{}{
			"attempt": attempt,
			"error":   err,
		})
		select {
		case <-time.After(time.Duration(attempt) * o.latchRetryDelay):
		case <-ctx.Done():
			err = fmt.Errorf("%v: %w", err, ctx.Err())
			attempt = latchCompleteAttempts
			continue
		}
		err = o.latch.Complete(ctx, applicationID)
	}
	if err != nil {
		metrics.Finalizations.WithLabelValues("latch_unsealed").Inc()
		log.Error("finalization latch left in progress", map[string]interface{}{"error": err})
	}
}

func (o *Orchestrator) partialFailure(ctx context.Context, log logger.Logger, app *models.Application, result models.PaymentResult, cause error) error {
	if err := o.latch.Release(ctx, app.ID); err != nil {
		log.Error("failed to release finalization latch", map[string]interface{}{"error": err})
	}
	metrics.Finalizations.WithLabelValues("partial_failure").Inc()
	log.Error("payment settled but application update failed", map[string]interface{}{
		"receiptNumber": result.ReceiptNumber,
		"error":         cause,
	})

	if o.ledger != nil {
		err := o.ledger.Record(ctx, Reconciliation{
			ApplicationID:    app.ID,
			PaymentReference: result.PaymentReference,
			ReceiptNumber:    result.ReceiptNumber,
			Amount:           result.Amount,
			PhoneNumber:      result.PhoneNumber,
			Reason:           cause.Error(),
		})
		if err != nil {
			log.Error("failed to record reconciliation entry", map[string]interface{}{"error": err})
		}
	}

	if o.alerter != nil {
		subject := fmt.Sprintf("Payment %s needs reconciliation", result.PaymentReference)
		body := fmt.Sprintf(
			"Application %s (%s) was paid but could not be submitted.\n\n"+
				"Payment reference: %s\nReceipt: %s\nAmount: %d\nPhone: %s\nError: %v\n",
			app.ID, app.Number, result.PaymentReference, result.ReceiptNumber,
			result.Amount, result.PhoneNumber, cause,
		)
		if err := o.alerter.Alert(ctx, subject, body); err != nil {
			log.Warn("failed to send reconciliation alert", map[string]interface{}{"error": err})
		}
	}

	return errors.NewPartialFailureError(result.PaymentReference, cause)
}

func (o *Orchestrator) notify(ctx context.Context, log logger.Logger, app *models.Application, result models.PaymentResult) {
	if o.notifier == nil || result.PhoneNumber == "" {
		return
	}
	number := app.Number
	if number == "" {
		number = app.ID
	}
	msg := fmt.Sprintf("Your insurance application %s has been submitted. Payment ref %s received.", number, result.PaymentReference)
	if err := o.notifier.Send(ctx, result.PhoneNumber, msg); err != nil {
		log.Warn("failed to send submission sms", map[string]interface{}{"error": err})
	}
}

// uploadDocuments returns nil, nil when there is nothing to upload.
func (o *Orchestrator) uploadDocuments(ctx context.Context, log logger.Logger, applicationID string, docs models.DocumentSet) (*models.UploadResult, error) {
	if len(docs) == 0 || o.uploader == nil {
		return nil, nil
	}

	done, err := o.uploads.Uploaded(ctx, applicationID)
	if err != nil {
		// Fall through: the uploader still skips types the backend already has.
		log.Warn("failed to read uploaded flag", map[string]interface{}{"error": err})
	}
	if done {
		metrics.DocumentUploads.WithLabelValues("skipped").Inc()
		log.Debug("documents already uploaded", nil)
		return &models.UploadResult{Skipped: docs.Types()}, nil
	}

	ctx, end := o.obs.StartStep(ctx, "upload_documents")
	result, err := o.uploader.Upload(ctx, applicationID, docs)
	end(err)
	if err != nil {
		metrics.DocumentUploads.WithLabelValues("failed").Inc()
		log.Warn("document upload failed", map[string]interface{}{"error": err})
		if errors.CodeOf(err) == errors.ErrCodeDocumentUploadFailed {
			return result, err
		}
		return result, errors.NewDocumentUploadFailedError(applicationID, err)
	}

	if result == nil {
		result = &models.UploadResult{}
	}
	if err := o.uploads.MarkUploaded(ctx, applicationID); err != nil {
		log.Warn("failed to set uploaded flag", map[string]interface{}{"error": err})
	}
	metrics.DocumentUploads.WithLabelValues("uploaded").Inc()
	log.Info("documents uploaded", map[string]interface{}{
		"uploaded": len(result.Uploaded),
		"skipped":  len(result.Skipped),
	})
	return result, nil
}

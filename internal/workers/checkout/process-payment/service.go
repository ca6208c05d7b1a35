package processpayment

import (
	"context"
	stderrors "errors"

	"insurance-checkout/internal/checkout"
	"insurance-checkout/internal/checkout/payment"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
)

type checkoutService struct {
	deps   checkout.Deps
	logger logger.Logger
}

// NewService returns a Service that drives a fresh Checkout per job. Drafts
// and the finalization latch are shared through deps, so a redelivered job
// reuses the draft and never submits twice.
func NewService(deps checkout.Deps, log logger.Logger) Service {
	if deps.Logger == nil {
		deps.Logger = log
	}
	return &checkoutService{deps: deps, logger: log}
}

func (s *checkoutService) Execute(ctx context.Context, input *Input) (*Output, error) {
	c := checkout.New(s.deps, input.Snapshot(), input.Documents)
	defer c.Close()

	app, err := c.Advance(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.StartPayment(ctx, input.PhoneNumber); err != nil {
		return nil, err
	}

	outcome, err := c.Await(ctx)
	if err != nil {
		return nil, afterInitiation(err, c.State())
	}

	st := c.State()
	if st.Application != nil {
		app = st.Application
	}
	out := &Output{
		ApplicationID:     app.ID,
		ApplicationNumber: app.Number,
		ApplicationStatus: string(app.Status),
		PaymentStatus:     string(st.Payment.Payment.Status),
		PaymentReference:  st.Payment.Payment.PaymentReference,
		ReceiptNumber:     st.Payment.Payment.ReceiptNumber,
		DocumentError:     st.DocumentError,
	}
	if outcome != nil && outcome.Upload != nil {
		out.DocumentsUploaded = len(outcome.Upload.Uploaded)
	}

	s.logger.Info("checkout finished", map[string]interface{}{
		"applicationId":    out.ApplicationID,
		"paymentReference": out.PaymentReference,
		"documents":        out.DocumentsUploaded,
	})
	return out, nil
}

// afterInitiation maps a failure seen once the payment prompt went out. None
// of the results is job-retryable: a retried job would prompt the customer
// again. A settled payment always surfaces as a PartialFailure with its
// reference so the finalize task can pick it up.
func afterInitiation(err error, st checkout.State) error {
	settled := st.Payment.State == payment.StateCompleted
	ref := st.Payment.Payment.PaymentReference

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		if settled {
			return errors.NewPartialFailureError(ref, err)
		}
		return errors.NewSessionAbandonedError("job deadline reached while awaiting payment")
	}

	stdErr := errors.Normalize(err)
	if !errors.IsRetryableErrorCode(stdErr.Code) {
		return err
	}
	if settled {
		if stdErr.Code == errors.ErrCodeDocumentUploadFailed {
			held := *stdErr
			held.Retryable = false
			return &held
		}
		return errors.NewPartialFailureError(ref, err)
	}
	return errors.NewSessionAbandonedError(stdErr.Error())
}

// Package checkout runs one submission through draft creation, payment and
// finalization, in that order, and exposes the state a wizard displays.
package checkout

import (
	"context"
	"sync"

	"insurance-checkout/internal/checkout/draft"
	"insurance-checkout/internal/checkout/finalize"
	"insurance-checkout/internal/checkout/payment"
	"insurance-checkout/internal/common/clock"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/common/observability"
	"insurance-checkout/internal/models"
)

type Step string

const (
	StepDetails    Step = "details"
	StepPayment    Step = "payment"
	StepFinalizing Step = "finalizing"
	StepDone       Step = "done"
	StepFailed     Step = "failed"
)

// Deps are shared by every Checkout in a process.
type Deps struct {
	Drafts        *draft.Registry
	Gateway       payment.Gateway
	Payment       payment.Config
	Finalizer     *finalize.Orchestrator
	Clock         clock.Clock
	Observability *observability.Observability
	Logger        logger.Logger
}

// State is the observable progress of a Checkout.
type State struct {
	CurrentStep      Step
	ErrorMessage     string
	RemainingSeconds int
	Application      *models.Application
	Payment          payment.Snapshot
	DocumentError    string
}

type Checkout struct {
	drafts    *draft.Registry
	session   *payment.Session
	finalizer *finalize.Orchestrator
	obs       *observability.Observability
	logger    logger.Logger

	snapshot *models.FormSnapshot
	docs     models.DocumentSet

	mu        sync.Mutex
	step      Step
	app       *models.Application
	result    *models.PaymentResult
	outcome   *finalize.Outcome
	lastErr   error

	// finalized is closed when the current finalization attempt settles.
	finalized       chan struct{}
	finalizedClosed bool
	finalizing      int
}

// New starts a Checkout in the details step for snapshot and docs.
func New(deps Deps, snapshot *models.FormSnapshot, docs models.DocumentSet) *Checkout {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	obs := deps.Observability
	if obs == nil {
		obs = observability.NewNoop()
	}
	fields := map[string]interface{}{"component": "checkout"}
	if snapshot != nil {
		fields["submissionId"] = snapshot.SubmissionID
	}
	log = log.WithFields(fields)

	c := &Checkout{
		drafts:    deps.Drafts,
		session:   payment.NewSession(deps.Gateway, deps.Payment, deps.Clock, log),
		finalizer: deps.Finalizer,
		obs:       obs,
		logger:    log,
		snapshot:  snapshot,
		docs:      docs,
		step:      StepDetails,
		finalized: make(chan struct{}),
	}
	c.session.OnCompleted(func(models.PaymentResult) {
		_, _ = c.OnPaymentComplete(context.Background())
	})
	return c
}

// Advance leaves the details step, creating the draft at most once.
func (c *Checkout) Advance(ctx context.Context) (*models.Application, error) {
	ctx, end := c.obs.StartStep(ctx, "ensure_draft")
	app, err := c.drafts.EnsureDraft(ctx, c.snapshot)
	end(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err
		return nil, err
	}
	c.app = app
	c.lastErr = nil
	if c.step == StepDetails {
		c.step = StepPayment
	}
	return app, nil
}

// StartPayment initiates the push payment for the held draft.
func (c *Checkout) StartPayment(ctx context.Context, phoneNumber string) error {
	c.mu.Lock()
	app, step := c.app, c.step
	c.mu.Unlock()

	if app == nil || step != StepPayment {
		return errors.NewInvalidStateError("start payment", string(step))
	}

	ctx, end := c.obs.StartStep(ctx, "initiate_payment")
	err := c.session.Initiate(ctx, app, phoneNumber)
	end(err)

	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	return err
}

// OnPaymentComplete finalizes the application with the result the payment
// session recorded. It is invoked by the session on completion and may be
// invoked again by the host; repeats are absorbed by the finalization latch.
// It refuses to run before the session has reached Completed.
func (c *Checkout) OnPaymentComplete(ctx context.Context) (*finalize.Outcome, error) {
	c.mu.Lock()
	app := c.app
	if app == nil {
		c.mu.Unlock()
		return nil, errors.NewInvalidStateError("finalize", string(StepDetails))
	}
	if c.step == StepDone {
		outcome := c.outcome
		c.mu.Unlock()
		return outcome, nil
	}
	c.mu.Unlock()

	result, ok := c.session.Result()
	if !ok {
		return nil, errors.NewInvalidStateError("finalize", string(c.session.State()))
	}

	c.mu.Lock()
	if c.step == StepDone {
		outcome := c.outcome
		c.mu.Unlock()
		return outcome, nil
	}
	c.step = StepFinalizing
	c.result = &result
	c.finalizing++
	c.mu.Unlock()

	outcome, err := c.finalizer.OnPaymentCompleted(ctx, app, result, c.docs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizing--
	switch {
	case err != nil:
		c.step = StepFailed
		c.lastErr = err
		c.logger.Error("finalization failed", map[string]interface{}{
			"paymentReference": result.PaymentReference,
			"error":            err,
		})
	case outcome.Skipped:
		if c.finalizing > 0 {
			// The call that entered the latch here settles the state.
			return outcome, nil
		}
		// Finalized elsewhere, e.g. by another worker sharing the latch.
		c.step = StepDone
		if c.outcome == nil {
			c.outcome = outcome
		}
		c.lastErr = nil
	default:
		c.step = StepDone
		c.app = outcome.Application
		c.outcome = outcome
		c.lastErr = nil
	}
	if !c.finalizedClosed {
		close(c.finalized)
		c.finalizedClosed = true
	}
	return outcome, err
}

// OnCancel abandons the current payment attempt.
func (c *Checkout) OnCancel() {
	c.session.Cancel()
}

// Retry starts over after a failure. A failed payment returns the session to
// idle so StartPayment can be called again; a failed finalization is
// re-attempted with the payment already received.
func (c *Checkout) Retry(ctx context.Context) error {
	c.mu.Lock()
	step, result := c.step, c.result
	c.mu.Unlock()

	if step == StepFailed && result != nil {
		c.mu.Lock()
		c.finalized = make(chan struct{})
		c.finalizedClosed = false
		c.mu.Unlock()
		_, err := c.OnPaymentComplete(ctx)
		return err
	}

	if err := c.session.Retry(); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// Await blocks until the current payment attempt ends and, when it completed,
// until finalization has run.
func (c *Checkout) Await(ctx context.Context) (*finalize.Outcome, error) {
	if _, err := c.session.Wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	finalized := c.finalized
	c.mu.Unlock()

	select {
	case <-finalized:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step == StepFailed {
		return nil, c.lastErr
	}
	return c.outcome, nil
}

// State returns the current step and display fields.
func (c *Checkout) State() State {
	snap := c.session.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		CurrentStep:      c.step,
		RemainingSeconds: snap.RemainingSeconds,
		Payment:          snap,
	}
	if c.app != nil {
		app := *c.app
		st.Application = &app
	}
	switch {
	case c.lastErr != nil:
		st.ErrorMessage = userMessage(c.lastErr)
	case c.step == StepPayment:
		st.ErrorMessage = snap.ErrorMessage
	}
	if c.outcome != nil && c.outcome.DocumentError != nil {
		st.DocumentError = userMessage(c.outcome.DocumentError)
	}
	return st
}

// Close tears down the payment session. In-flight responses are discarded.
func (c *Checkout) Close() {
	c.session.Close()
}

func userMessage(err error) string {
	if se, ok := errors.As(err); ok {
		return se.UserMessage()
	}
	return err.Error()
}

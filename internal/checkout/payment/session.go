// Package payment drives one mobile-money push payment from initiation to a
// terminal status. A poll ticker and a countdown ticker race to resolve the
// session; every transition is checked against a generation token so late
// ticks and responses from an abandoned attempt are discarded.
package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"insurance-checkout/internal/common/clock"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/common/metrics"
	"insurance-checkout/internal/models"

	"github.com/google/uuid"
)

// Gateway is the backend payment API.
type Gateway interface {
	InitiatePayment(ctx context.Context, request *models.PaymentInitiationRequest) (*models.PaymentInitiation, error)
	PaymentStatus(ctx context.Context, paymentID string) (*models.PaymentStatusResponse, error)
}

type Config struct {
	PollInterval           time.Duration
	Countdown              time.Duration
	CountdownStep          time.Duration
	RequestTimeout         time.Duration
	AccountReferencePrefix string
	Description            string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.Countdown <= 0 {
		c.Countdown = 5 * time.Minute
	}
	if c.CountdownStep <= 0 {
		c.CountdownStep = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Description == "" {
		c.Description = "Insurance premium"
	}
	return c
}

// Snapshot is a point-in-time copy of the session for display and tests.
type Snapshot struct {
	State            State
	Payment          models.PaymentSession
	RemainingSeconds int
	ErrorMessage     string
	Err              error
}

// Session is one push-payment attempt, reusable through Retry.
type Session struct {
	gateway Gateway
	clock   clock.Clock
	cfg     Config
	logger  logger.Logger

	mu           sync.Mutex
	state        State
	payment      models.PaymentSession
	remaining    time.Duration
	lastErr      error
	gen          uint64
	pollInFlight bool
	closed       bool

	pollTicker      clock.Ticker
	countdownTicker clock.Ticker
	stopTimers      context.CancelFunc
	timersDone      chan struct{}

	done       chan struct{}
	doneClosed bool

	onCompleted []func(models.PaymentResult)
}

func NewSession(gateway Gateway, cfg Config, clk clock.Clock, log logger.Logger) *Session {
	if clk == nil {
		clk = clock.NewReal()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Session{
		gateway: gateway,
		clock:   clk,
		cfg:     cfg.withDefaults(),
		logger:  log.WithFields(map[string]interface{}{"component": "payment_session"}),
		state:   StateIdle,
	}
}

// OnCompleted registers fn to receive the completion signal. It is called
// once per successful attempt, outside the session lock.
func (s *Session) OnCompleted(fn func(models.PaymentResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCompleted = append(s.onCompleted, fn)
}

// Initiate validates input, requests the push prompt and on success starts
// the poll and countdown timers. Validation and initiation errors leave the
// session Idle with no timer running.
func (s *Session) Initiate(ctx context.Context, app *models.Application, phoneNumber string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.NewSessionAbandonedError("session is closed")
	}
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return errors.NewInvalidStateError("initiate payment", string(state))
	}

	request, err := s.buildRequest(app, phoneNumber)
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.gen++
	gen := s.gen
	s.state = StateInitiating
	s.lastErr = nil
	s.payment = models.PaymentSession{
		ApplicationID: request.ApplicationID,
		PhoneNumber:   request.PhoneNumber,
		Amount:        request.Amount,
		Status:        models.PaymentStatusInitiated,
	}
	s.done = make(chan struct{})
	s.doneClosed = false
	s.mu.Unlock()

	initiation, err := s.gateway.InitiatePayment(ctx, request)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		// Cancelled, closed or retried while the request was in flight.
		fields := map[string]interface{}{"applicationId": request.ApplicationID}
		if initiation != nil {
			fields["paymentReference"] = initiation.PaymentReference
		}
		s.logger.Warn("discarding initiation response for abandoned session", fields)
		return errors.NewSessionAbandonedError("session was abandoned during initiation")
	}

	if err != nil {
		s.state = StateIdle
		s.payment = models.PaymentSession{}
		s.lastErr = err
		s.closeDoneLocked()
		s.logger.Warn("payment initiation failed", map[string]interface{}{
			"applicationId": request.ApplicationID,
			"error":         err,
		})
		return err
	}

	s.state = StateProcessing
	s.payment.PaymentID = initiation.PaymentID
	s.payment.PaymentReference = initiation.PaymentReference
	s.payment.Status = models.PaymentStatusProcessing
	s.payment.StartedAt = s.clock.Now()
	if initiation.Amount > 0 {
		s.payment.Amount = initiation.Amount
	}
	s.remaining = s.cfg.Countdown
	s.startTimersLocked(gen)
	metrics.PaymentSessionsActive.Inc()

	s.logger.Info("payment initiated", map[string]interface{}{
		"applicationId":    request.ApplicationID,
		"paymentId":        initiation.PaymentID,
		"paymentReference": initiation.PaymentReference,
		"countdown":        s.cfg.Countdown.String(),
	})
	return nil
}

func (s *Session) buildRequest(app *models.Application, phoneNumber string) (*models.PaymentInitiationRequest, error) {
	if app == nil || app.ID == "" {
		return nil, errors.NewPaymentRejectedError("Application not found", "no draft application for payment")
	}
	if app.PremiumAmount <= 0 {
		return nil, errors.NewPaymentRejectedError(
			"The premium amount must be greater than zero",
			fmt.Sprintf("premiumAmount=%d", app.PremiumAmount),
		)
	}
	phone, err := NormalizePhone(phoneNumber)
	if err != nil {
		return nil, err
	}
	return &models.PaymentInitiationRequest{
		ApplicationID:    app.ID,
		Amount:           app.PremiumAmount,
		PhoneNumber:      phone,
		AccountReference: s.accountReference(app),
		Description:      s.cfg.Description,
	}, nil
}

// accountReference is shown on the customer's phone prompt, so it is capped
// at 12 characters.
func (s *Session) accountReference(app *models.Application) string {
	ref := app.Number
	if ref == "" {
		ref = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		if s.cfg.AccountReferencePrefix != "" {
			ref = s.cfg.AccountReferencePrefix + "-" + ref
		}
	}
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return ref
}

func (s *Session) startTimersLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	s.pollTicker = s.clock.NewTicker(s.cfg.PollInterval)
	s.countdownTicker = s.clock.NewTicker(s.cfg.CountdownStep)
	s.stopTimers = cancel
	s.timersDone = make(chan struct{})

	go s.runTimers(ctx, gen, s.pollTicker, s.countdownTicker, s.timersDone)
}

// stopTimersLocked cancels both tickers in the caller's transition.
func (s *Session) stopTimersLocked() {
	if s.pollTicker != nil {
		s.pollTicker.Stop()
		s.pollTicker = nil
	}
	if s.countdownTicker != nil {
		s.countdownTicker.Stop()
		s.countdownTicker = nil
	}
	if s.stopTimers != nil {
		s.stopTimers()
		s.stopTimers = nil
	}
}

func (s *Session) runTimers(ctx context.Context, gen uint64, poll, countdown clock.Ticker, done chan struct{}) {
	defer close(done)
	defer poll.Stop()
	defer countdown.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C():
			s.pollTick(ctx, gen)
		case <-countdown.C():
			if !s.countdownTick(gen) {
				return
			}
		}
	}
}

// pollTick starts a status query unless one is still in flight.
func (s *Session) pollTick(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateProcessing {
		s.mu.Unlock()
		return
	}
	if s.pollInFlight {
		s.mu.Unlock()
		metrics.PaymentPolls.WithLabelValues("skipped").Inc()
		return
	}
	s.pollInFlight = true
	paymentID := s.payment.PaymentID
	s.mu.Unlock()

	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		resp, err := s.gateway.PaymentStatus(reqCtx, paymentID)
		cancel()
		s.applyPoll(gen, resp, err)
	}()
}

func (s *Session) applyPoll(gen uint64, resp *models.PaymentStatusResponse, err error) {
	var emit func()

	s.mu.Lock()
	func() {
		if s.gen != gen {
			metrics.PaymentPolls.WithLabelValues("stale").Inc()
			s.logger.Debug("discarding stale poll response", map[string]interface{}{"generation": gen})
			return
		}
		s.pollInFlight = false

		if s.state != StateProcessing {
			metrics.PaymentPolls.WithLabelValues("stale").Inc()
			s.logger.Debug("discarding poll response after terminal state", map[string]interface{}{
				"state": string(s.state),
			})
			return
		}

		if err != nil {
			metrics.PaymentPolls.WithLabelValues("error").Inc()
			s.logger.Warn("payment status query failed", map[string]interface{}{
				"paymentId": s.payment.PaymentID,
				"error":     err,
			})
			return
		}

		to, terminal := terminalFor(resp.Status)
		if !terminal {
			metrics.PaymentPolls.WithLabelValues("pending").Inc()
			return
		}
		metrics.PaymentPolls.WithLabelValues("applied").Inc()

		if s.payment.PaymentReference == "" {
			s.payment.PaymentReference = resp.PaymentReference
		}
		if to == StateCompleted {
			s.payment.ReceiptNumber = resp.MpesaReceiptNumber
			s.payment.TransactionDate = resp.MpesaTransactionDate
			emit = s.transitionLocked(StateCompleted, "")
			return
		}
		emit = s.transitionLocked(to, resp.Reason())
	}()
	s.mu.Unlock()

	if emit != nil {
		emit()
	}
}

// countdownTick decrements the remaining budget. It reports whether the
// timer loop should keep running.
func (s *Session) countdownTick(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state != StateProcessing {
		return false
	}
	s.remaining -= s.cfg.CountdownStep
	if s.remaining > 0 {
		return true
	}
	s.remaining = 0
	s.transitionLocked(StateExpired, fmt.Sprintf(
		"No payment confirmation was received within %s. Please try again.", s.cfg.Countdown))
	return false
}

// transitionLocked moves to a terminal state, cancels both timers and wakes
// waiters. The returned func delivers the completion signal and must be
// called after the lock is released.
func (s *Session) transitionLocked(to State, reason string) func() {
	from := s.state
	s.state = to
	s.payment.Status = to.paymentStatus()
	s.stopTimersLocked()

	if from == StateProcessing {
		metrics.PaymentSessionsActive.Dec()
	}
	metrics.PaymentSessionsTerminal.WithLabelValues(string(to)).Inc()

	fields := map[string]interface{}{
		"from":             string(from),
		"to":               string(to),
		"paymentId":        s.payment.PaymentID,
		"paymentReference": s.payment.PaymentReference,
	}

	if to != StateCompleted {
		s.payment.FailureReason = reason
		s.lastErr = errors.NewPaymentTerminalFailureError(string(to), reason, s.payment.PaymentReference)
		fields["reason"] = reason
		s.logger.Info("payment session ended", fields)
		s.closeDoneLocked()
		return nil
	}

	fields["receiptNumber"] = s.payment.ReceiptNumber
	s.logger.Info("payment completed", fields)
	s.closeDoneLocked()

	result := s.resultLocked()
	listeners := append([]func(models.PaymentResult){}, s.onCompleted...)
	return func() {
		for _, fn := range listeners {
			fn(result)
		}
	}
}

func (s *Session) closeDoneLocked() {
	if s.done != nil && !s.doneClosed {
		close(s.done)
		s.doneClosed = true
	}
}

func (s *Session) resultLocked() models.PaymentResult {
	return models.PaymentResult{
		PaymentID:        s.payment.PaymentID,
		PaymentReference: s.payment.PaymentReference,
		ReceiptNumber:    s.payment.ReceiptNumber,
		TransactionDate:  s.payment.TransactionDate,
		Amount:           s.payment.Amount,
		PhoneNumber:      s.payment.PhoneNumber,
	}
}

// Cancel abandons a non-terminal attempt. Responses still in flight are
// discarded. It is a no-op when Idle or already terminal.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked("Payment was cancelled.")
}

func (s *Session) cancelLocked(reason string) {
	if s.state == StateIdle || s.state.IsTerminal() {
		return
	}
	s.gen++
	s.pollInFlight = false
	s.transitionLocked(StateCancelled, reason)
}

// Retry clears a terminal attempt and returns to Idle.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.NewSessionAbandonedError("session is closed")
	}
	if !s.state.IsTerminal() {
		return errors.NewInvalidStateError("retry payment", string(s.state))
	}

	s.gen++
	s.stopTimersLocked()
	s.state = StateIdle
	s.payment = models.PaymentSession{}
	s.remaining = 0
	s.lastErr = nil
	s.pollInFlight = false
	s.done = nil
	s.doneClosed = false
	return nil
}

// Close tears the session down: any active attempt is cancelled, both timers
// are stopped and later calls fail with SessionAbandoned. Close waits for the
// timer goroutine to exit.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancelLocked("Payment session was closed.")
	s.gen++
	s.stopTimersLocked()
	s.closed = true
	timersDone := s.timersDone
	s.mu.Unlock()

	if timersDone != nil {
		<-timersDone
	}
}

// Wait blocks until the current attempt ends or ctx is done. It returns nil
// only when the payment completed.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		snap := s.Snapshot()
		return snap, errors.NewInvalidStateError("wait for payment", string(snap.State))
	}

	select {
	case <-done:
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}

	snap := s.Snapshot()
	if snap.State == StateCompleted {
		return snap, nil
	}
	if snap.Err != nil {
		return snap, snap.Err
	}
	return snap, errors.NewSessionAbandonedError("payment attempt ended in state " + string(snap.State))
}

// Result returns the completion signal payload once Completed.
func (s *Session) Result() (models.PaymentResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCompleted {
		return models.PaymentResult{}, false
	}
	return s.resultLocked(), true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:            s.state,
		Payment:          s.payment,
		RemainingSeconds: int((s.remaining + time.Second - 1) / time.Second),
		Err:              s.lastErr,
	}
	if s.lastErr != nil {
		if se, ok := errors.As(s.lastErr); ok {
			snap.ErrorMessage = se.UserMessage()
		} else {
			snap.ErrorMessage = s.lastErr.Error()
		}
	}
	return snap
}

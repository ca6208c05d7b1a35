package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"insurance-checkout/internal/backend"
	"insurance-checkout/internal/checkout/documents"
	"insurance-checkout/internal/checkout/draft"
	"insurance-checkout/internal/checkout/finalize"
	"insurance-checkout/internal/checkout/payment"
	"insurance-checkout/internal/common/clock"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fake Backend
// ==========================

type fakeBackend struct {
	t  *testing.T
	mu sync.Mutex

	creates  int
	patches  int
	uploads  int
	statuses int

	failPatch     bool
	paymentStatus models.PaymentStatus
	lastPatch     models.ApplicationUpdate
	lastInitiate  models.PaymentInitiationRequest
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/applications":
		f.creates++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"applicationId":"app-1","applicationNumber":"APP-0001","status":"draft","premiumAmount":48000}}`))

	case r.Method == http.MethodPatch && r.URL.Path == "/applications/app-1":
		f.patches++
		if f.failPatch {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"upstream unavailable"}`))
			return
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastPatch))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"applicationId":     "app-1",
			"applicationNumber": "APP-0001",
			"status":            f.lastPatch.Status,
			"paymentReference":  f.lastPatch.PaymentReference,
			"receiptNumber":     f.lastPatch.ReceiptNumber,
			"premiumAmount":     48000,
		})

	case r.Method == http.MethodGet && r.URL.Path == "/applications/app-1/documents":
		_, _ = w.Write([]byte(`[]`))

	case r.Method == http.MethodPost && r.URL.Path == "/applications/app-1/documents":
		f.uploads++
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPost && r.URL.Path == "/payments/mobilemoney/initiate":
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.lastInitiate))
		_, _ = w.Write([]byte(`{"paymentId":"pay-1","paymentReference":"REF-1","phoneNumber":"0712345678","amount":48000}`))

	case r.Method == http.MethodGet && r.URL.Path == "/payments/pay-1/status":
		f.statuses++
		body := map[string]interface{}{
			"status":           f.paymentStatus,
			"amount":           48000,
			"phoneNumber":      "0712345678",
			"paymentReference": "REF-1",
		}
		if f.paymentStatus == models.PaymentStatusCompleted {
			body["mpesaReceiptNumber"] = "QAX123"
			body["mpesaTransactionDate"] = "20260105090312"
		}
		if f.paymentStatus == models.PaymentStatusFailed {
			body["resultDesc"] = "The balance is insufficient for the transaction"
		}
		_ = json.NewEncoder(w).Encode(body)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) counts() (creates, patches, uploads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.patches, f.uploads
}

// ==========================
// Helpers
// ==========================

type harness struct {
	backend  *fakeBackend
	clock    *clock.Manual
	checkout *Checkout
}

func newHarness(t *testing.T) *harness {
	fb := &fakeBackend{t: t, paymentStatus: models.PaymentStatusPending}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	log := logger.NewTestLogger(t)
	client := backend.NewClient(srv.URL, srv.Client(), log)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "id.pdf"), []byte("%PDF-1.4"), 0o600))
	docs := models.DocumentSet{
		"national_id": {Name: "id.pdf", Size: 8, MediaType: "application/pdf", StorageRef: "id.pdf"},
	}

	clk := clock.NewManual(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	deps := Deps{
		Drafts:  draft.NewRegistry(client, nil, log),
		Gateway: client,
		Payment: payment.Config{
			PollInterval:  3 * time.Second,
			Countdown:     30 * time.Second,
			CountdownStep: time.Second,
		},
		Finalizer: finalize.New(finalize.Options{
			Updater:  client,
			Uploader: documents.NewUploader(client, documents.NewFileSource(root), log),
			Clock:    clk,
			Logger:   log,
		}),
		Clock:  clk,
		Logger: log,
	}

	snapshot := &models.FormSnapshot{
		SubmissionID:  "sub-1",
		ProductType:   "motor",
		PremiumAmount: 48000,
		Personal:      models.PersonalInfo{FullName: "Jane Wanjiru", Email: "jane@example.com", Phone: "0712345678"},
	}

	c := New(deps, snapshot, docs)
	t.Cleanup(c.Close)
	return &harness{backend: fb, clock: clk, checkout: c}
}

func awaitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ==========================
// Flow Tests
// ==========================

func TestCheckout_PaysAndSubmits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Equal(t, StepDetails, h.checkout.State().CurrentStep)

	app, err := h.checkout.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app-1", app.ID)
	_, err = h.checkout.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, h.checkout.State().CurrentStep)

	require.NoError(t, h.checkout.StartPayment(ctx, "0712345678"))
	h.backend.set(func(f *fakeBackend) {
		assert.Equal(t, int64(48000), f.lastInitiate.Amount)
		assert.Equal(t, "APP-0001", f.lastInitiate.AccountReference)
	})
	assert.Equal(t, 30, h.checkout.State().RemainingSeconds)

	h.backend.set(func(f *fakeBackend) { f.paymentStatus = models.PaymentStatusCompleted })
	h.clock.Advance(3 * time.Second)

	outcome, err := h.checkout.Await(awaitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusSubmitted, outcome.Application.Status)
	assert.Equal(t, "REF-1", outcome.Application.PaymentReference)
	assert.True(t, outcome.DocumentsUploaded)

	creates, patches, uploads := h.backend.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, patches)
	assert.Equal(t, 1, uploads)
	h.backend.set(func(f *fakeBackend) { assert.Equal(t, "QAX123", f.lastPatch.ReceiptNumber) })

	st := h.checkout.State()
	assert.Equal(t, StepDone, st.CurrentStep)
	assert.Empty(t, st.ErrorMessage)
	assert.Equal(t, payment.StateCompleted, st.Payment.State)

	// A duplicate completion signal from the host changes nothing.
	again, err := h.checkout.OnPaymentComplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcome, again)
	_, patches, uploads = h.backend.counts()
	assert.Equal(t, 1, patches)
	assert.Equal(t, 1, uploads)
}

func TestCheckout_CompletionSignalBeforePaymentIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.checkout.Advance(ctx)
	require.NoError(t, err)
	_, err = h.checkout.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.checkout.StartPayment(ctx, "0712345678"))
	h.clock.Advance(3 * time.Second)

	outcome, err := h.checkout.OnPaymentComplete(ctx)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, errors.ErrInvalidState)

	_, patches, uploads := h.backend.counts()
	assert.Equal(t, 0, patches)
	assert.Equal(t, 0, uploads)

	st := h.checkout.State()
	assert.Equal(t, StepPayment, st.CurrentStep)
	assert.Equal(t, payment.StateProcessing, st.Payment.State)
	assert.Empty(t, st.ErrorMessage)
}

func TestCheckout_PartialFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.set(func(f *fakeBackend) {
		f.failPatch = true
		f.paymentStatus = models.PaymentStatusCompleted
	})

	_, err := h.checkout.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.checkout.StartPayment(ctx, "0712345678"))
	h.clock.Advance(3 * time.Second)

	_, err = h.checkout.Await(awaitCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPartialFailure)

	st := h.checkout.State()
	assert.Equal(t, StepFailed, st.CurrentStep)
	assert.Contains(t, st.ErrorMessage, "REF-1")
	_, _, uploads := h.backend.counts()
	assert.Equal(t, 0, uploads)

	h.backend.set(func(f *fakeBackend) { f.failPatch = false })
	require.NoError(t, h.checkout.Retry(ctx))

	outcome, err := h.checkout.Await(awaitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusSubmitted, outcome.Application.Status)

	_, patches, uploads := h.backend.counts()
	assert.Equal(t, 2, patches)
	assert.Equal(t, 1, uploads)
	assert.Equal(t, StepDone, h.checkout.State().CurrentStep)
}

func TestCheckout_FailedPaymentCanBeRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.set(func(f *fakeBackend) { f.paymentStatus = models.PaymentStatusFailed })

	_, err := h.checkout.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.checkout.StartPayment(ctx, "0712345678"))
	h.clock.Advance(3 * time.Second)

	_, err = h.checkout.Await(awaitCtx(t))
	assert.ErrorIs(t, err, errors.ErrPaymentTerminalFailure)

	st := h.checkout.State()
	assert.Equal(t, StepPayment, st.CurrentStep)
	assert.Contains(t, st.ErrorMessage, "insufficient")

	require.NoError(t, h.checkout.Retry(ctx))
	assert.Empty(t, h.checkout.State().ErrorMessage)

	h.backend.set(func(f *fakeBackend) { f.paymentStatus = models.PaymentStatusCompleted })
	require.NoError(t, h.checkout.StartPayment(ctx, "254712345678"))
	h.clock.Advance(3 * time.Second)

	outcome, err := h.checkout.Await(awaitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusSubmitted, outcome.Application.Status)
}

func TestCheckout_CancelStopsPolling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.checkout.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.checkout.StartPayment(ctx, "0712345678"))

	h.checkout.OnCancel()
	assert.Equal(t, payment.StateCancelled, h.checkout.State().Payment.State)
	assert.Equal(t, 0, h.clock.Tickers())

	h.clock.Advance(time.Minute)
	h.backend.mu.Lock()
	assert.Equal(t, 0, h.backend.statuses)
	h.backend.mu.Unlock()
}

func TestCheckout_StartPaymentRequiresDraft(t *testing.T) {
	h := newHarness(t)

	err := h.checkout.StartPayment(context.Background(), "0712345678")
	assert.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestCheckout_InvalidPhoneSurfacesMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.checkout.Advance(ctx)
	require.NoError(t, err)

	err = h.checkout.StartPayment(ctx, "0812345678")
	assert.ErrorIs(t, err, errors.ErrPaymentRejected)
	assert.Contains(t, h.checkout.State().ErrorMessage, "valid mobile money number")
	assert.Equal(t, 0, h.clock.Tickers())
}

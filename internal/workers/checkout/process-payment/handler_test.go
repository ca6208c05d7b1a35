package processpayment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"insurance-checkout/internal/common/config"
	"insurance-checkout/internal/common/errors"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Service Implementation
// ==========================

type MockService struct {
	mock.Mock
}

func (m *MockService) Execute(ctx context.Context, input *Input) (*Output, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Output), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "insurance-checkout",
		ElementId:          "Activity_ProcessPayment",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func createValidVariables() map[string]interface{} {
	return map[string]interface{}{
		"submissionId": "sub-1",
		"phoneNumber":  "0712345678",
		"form": map[string]interface{}{
			"productType":   "motor",
			"premiumAmount": 12500,
			"personal": map[string]interface{}{
				"fullName": "Jane Doe",
				"email":    "jane@example.com",
				"phone":    "0712345678",
			},
		},
		"documents": map[string]interface{}{
			"national_id": map[string]interface{}{"name": "id.pdf", "storageRef": "sub-1/id.pdf", "size": 8},
		},
	}
}

func activity(t *testing.T) *registry.Activity {
	reg, err := registry.Default()
	require.NoError(t, err)
	a, ok := reg.Find(TaskType)
	require.True(t, ok)
	return a
}

func createHandler(t *testing.T, svc Service) *Handler {
	h, err := NewHandler(HandlerOptions{
		CustomConfig: DefaultConfig(),
		Activity:     activity(t),
		Service:      svc,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr string
	}{
		{
			name: "valid configuration",
			opts: HandlerOptions{CustomConfig: DefaultConfig(), Service: &MockService{}},
		},
		{
			name:    "invalid timeout",
			opts:    HandlerOptions{CustomConfig: &Config{Enabled: true, MaxJobsActive: 1}, Service: &MockService{}},
			wantErr: "timeout must be positive",
		},
		{
			name:    "missing checkout dependencies",
			opts:    HandlerOptions{CustomConfig: DefaultConfig()},
			wantErr: "requires drafts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = logger.NewTestLogger(t)
			h, err := NewHandler(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TaskType, h.GetTaskType())
			assert.True(t, h.IsEnabled())
		})
	}
}

func TestCreateConfigFromAppConfig_TimeoutCoversCountdown(t *testing.T) {
	appConfig := &config.Config{
		Workers: map[string]config.WorkerConfig{
			workerName: {Enabled: true, MaxJobsActive: 3, Timeout: 60000},
		},
	}
	appConfig.Payment.Countdown = 300000

	cfg := createConfigFromAppConfig(appConfig, nil)

	assert.Equal(t, 3, cfg.MaxJobsActive)
	assert.Equal(t, 6*time.Minute, cfg.Timeout)
}

func TestCreateConfigFromAppConfig_Disabled(t *testing.T) {
	appConfig := &config.Config{
		Workers: map[string]config.WorkerConfig{workerName: {Enabled: false}},
	}
	cfg := createConfigFromAppConfig(appConfig, nil)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, DefaultConfig().MaxJobsActive, cfg.MaxJobsActive)
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := createHandler(t, &MockService{})

	input, err := h.parseInput(createMockJob(1, createValidVariables()))

	require.NoError(t, err)
	assert.Equal(t, "0712345678", input.PhoneNumber)
	snap := input.Snapshot()
	assert.Equal(t, "sub-1", snap.SubmissionID)
	assert.Equal(t, int64(12500), snap.PremiumAmount)
	assert.Equal(t, "Jane Doe", snap.Personal.FullName)
	assert.Equal(t, "sub-1/id.pdf", input.Documents["national_id"].StorageRef)
}

func TestHandler_ParseInput_Invalid(t *testing.T) {
	h := createHandler(t, &MockService{})

	tests := []struct {
		name  string
		edit  func(map[string]interface{})
		field string
	}{
		{"missing phone", func(v map[string]interface{}) { delete(v, "phoneNumber") }, "phoneNumber"},
		{"zero premium", func(v map[string]interface{}) {
			v["form"].(map[string]interface{})["premiumAmount"] = 0
		}, "form.premiumAmount"},
		{"document without storage ref", func(v map[string]interface{}) {
			v["documents"] = map[string]interface{}{"logbook": map[string]interface{}{"name": "l.jpg"}}
		}, "documents.logbook.storageRef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := createValidVariables()
			tt.edit(vars)

			_, err := h.parseInput(createMockJob(2, vars))

			require.Error(t, err)
			se, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeInvalidInput, se.Code)
			assert.Contains(t, se.FieldErrors, tt.field)
		})
	}
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute_DelegatesToService(t *testing.T) {
	svc := &MockService{}
	want := &Output{
		ApplicationID:     "app-1",
		ApplicationStatus: "submitted",
		PaymentStatus:     "completed",
		PaymentReference:  "PAY-1",
		ReceiptNumber:     "RCPT1",
		DocumentsUploaded: 1,
	}
	svc.On("Execute", mock.Anything, mock.MatchedBy(func(in *Input) bool {
		return in.SubmissionID == "sub-1"
	})).Return(want, nil)
	h := createHandler(t, svc)

	input, err := h.parseInput(createMockJob(3, createValidVariables()))
	require.NoError(t, err)
	out, err := h.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, want, out)
	svc.AssertExpectations(t)
}

func TestHandler_Execute_PropagatesPaymentFailure(t *testing.T) {
	svc := &MockService{}
	svc.On("Execute", mock.Anything, mock.Anything).
		Return(nil, errors.NewPaymentTerminalFailureError("failed", "insufficient funds", "PAY-1"))
	h := createHandler(t, svc)

	_, err := h.Execute(context.Background(), &Input{SubmissionID: "sub-1"})

	require.Error(t, err)
	bpmn := errors.ConvertToBPMNError(errors.Normalize(err))
	assert.Equal(t, "PAYMENT_TERMINAL_FAILURE", bpmn.Code)
}

package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Tests
// ==========================

func TestSMSNotifier_Send(t *testing.T) {
	var got *sns.PublishInput
	n := NewSMSNotifier(&MockSNSService{
		PublishFunc: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			got = params
			return &sns.PublishOutput{}, nil
		},
	}, "BROKER")

	require.NoError(t, n.Send(context.Background(), "0712345678", "Your application APP-1 was submitted"))
	require.NotNil(t, got)
	assert.Equal(t, "+254712345678", *got.PhoneNumber)
	assert.Equal(t, "BROKER", *got.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
}

func TestSMSNotifier_SendError(t *testing.T) {
	n := NewSMSNotifier(&MockSNSService{
		PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		},
	}, "")
	err := n.Send(context.Background(), "0712345678", "hi")
	assert.ErrorContains(t, err, "throttled")
}

func TestEmailAlerter_Alert(t *testing.T) {
	var got *ses.SendEmailInput
	a := NewEmailAlerter(&MockSESService{
		SendEmailFunc: func(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			got = params
			return &ses.SendEmailOutput{}, nil
		},
	}, "ops@broker.test", []string{"recon@broker.test"})

	require.NoError(t, a.Alert(context.Background(), "Reconcile PAY-1", "details"))
	assert.Equal(t, []string{"recon@broker.test"}, got.Destination.ToAddresses)
	assert.Equal(t, "Reconcile PAY-1", *got.Message.Subject.Data)
}

func TestEmailAlerter_NoRecipients(t *testing.T) {
	a := NewEmailAlerter(&MockSESService{}, "ops@broker.test", nil)
	assert.Error(t, a.Alert(context.Background(), "s", "b"))
}

func TestToE164(t *testing.T) {
	assert.Equal(t, "+254712345678", ToE164("0712345678"))
	assert.Equal(t, "+254112345678", ToE164("0112345678"))
	assert.Equal(t, "+254712345678", ToE164("+254712345678"))
}

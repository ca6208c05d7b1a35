package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the subset of the SNS client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// LoadConfig resolves credentials and region the standard SDK way.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}

// SMSNotifier sends transactional SMS to customers.
type SMSNotifier struct {
	client   SNSService
	senderID string
}

func NewSMSNotifier(client SNSService, senderID string) *SMSNotifier {
	return &SMSNotifier{client: client, senderID: senderID}
}

func NewSMSNotifierFromConfig(cfg aws.Config, senderID string) *SMSNotifier {
	return NewSMSNotifier(sns.NewFromConfig(cfg), senderID)
}

// Send publishes message to a local 10-digit number, converted to E.164.
func (n *SMSNotifier) Send(ctx context.Context, phone, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(ToE164(phone)),
		Message:     aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if n.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(n.senderID),
		}
	}
	if _, err := n.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("publish sms: %w", err)
	}
	return nil
}

// ToE164 maps 07XXXXXXXX / 01XXXXXXXX to +254XXXXXXXXX. Other inputs are
// returned unchanged.
func ToE164(phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	if len(phone) == 10 && strings.HasPrefix(phone, "0") {
		return "+254" + phone[1:]
	}
	return phone
}

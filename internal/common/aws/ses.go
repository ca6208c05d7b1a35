package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the subset of the SES client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailAlerter emails the operations team, e.g. about payments that need
// manual reconciliation.
type EmailAlerter struct {
	client SESService
	from   string
	to     []string
}

func NewEmailAlerter(client SESService, from string, to []string) *EmailAlerter {
	return &EmailAlerter{client: client, from: from, to: to}
}

// NewEmailAlerterFromConfig builds the SES client from the shared AWS config.
func NewEmailAlerterFromConfig(cfg aws.Config, from string, to []string) *EmailAlerter {
	return NewEmailAlerter(ses.NewFromConfig(cfg), from, to)
}

func (a *EmailAlerter) Alert(ctx context.Context, subject, body string) error {
	if len(a.to) == 0 {
		return fmt.Errorf("no alert recipients configured")
	}
	_, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: a.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(a.from),
	})
	if err != nil {
		return fmt.Errorf("send alert to %s: %w", strings.Join(a.to, ","), err)
	}
	return nil
}

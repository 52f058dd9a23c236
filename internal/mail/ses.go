// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package mail

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/samber/oops"

	"github.com/tollgate/tollgate/internal/awsx"
)

const charset = "UTF-8"

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers mail through Amazon SES.
type SESSender struct {
	client sesAPI
}

// NewSESSender creates a SESSender from AWS configuration. A non-empty
// endpoint overrides the service URL, e.g. for LocalStack.
func NewSESSender(cfg aws.Config, endpoint string) *SESSender {
	client := sesv2.NewFromConfig(cfg, func(o *sesv2.Options) {
		o.BaseEndpoint = awsx.Endpoint(endpoint)
	})
	return &SESSender{client: client}
}

// Send delivers msg as a simple text mail.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charset)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String(charset)},
				},
			},
		},
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "ses send email").
			With("subject", msg.Subject).
			Wrap(err)
	}
	return nil
}

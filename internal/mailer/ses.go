package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/lafabrique/excerpt-gateway/internal/pkg/logger"
)

// SESMailer sends mail through AWS SES v2.
type SESMailer struct {
	client    *sesv2.Client
	from      string
	configSet string
}

// NewSESMailer builds the SES client. Static credentials are optional;
// without them the default chain (IAM role) applies. from must be a
// verified sender identity.
func NewSESMailer(ctx context.Context, region, accessKey, secretKey, from, configSet string) (*SESMailer, error) {
	if from == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESMailer{
		client:    sesv2.NewFromConfig(cfg),
		from:      from,
		configSet: configSet,
	}, nil
}

// Send delivers one message and returns the SES message id.
func (m *SESMailer) Send(ctx context.Context, msg *Message) (string, error) {
	simple := &types.Message{
		Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
		Body: &types.Body{
			Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
		},
	}
	for name, value := range msg.Headers {
		simple.Headers = append(simple.Headers, types.MessageHeader{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Simple: simple},
	}
	if m.configSet != "" {
		input.ConfigurationSetName = aws.String(m.configSet)
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sending via SES: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Info("mail accepted by SES", "email", msg.To, "messageId", messageID)
	return messageID, nil
}

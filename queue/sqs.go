package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/kapicorp/webhook-relay/config"
)

// SQS service limits, absorbed here so callers never see them
const (
	sqsMaxBatch    = 10
	sqsMaxWaitSecs = 20
)

/* AWS SQS implementation of Backend
 * One fixed queue URL; receipt handles are SQS's own, delivery attempts come
 * from the ApproximateReceiveCount system attribute
 */
type SQS struct {
	client   *sqs.Client
	queueURL string
}

// NewSQS creates an SQS backend bound to one queue URL
func NewSQS(ctx context.Context, cfg config.AWSSettings) (*SQS, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SQS{
		client:   client,
		queueURL: cfg.QueueURL,
	}, nil
}

// Publish sends the body as a message to the queue
func (s *SQS) Publish(ctx context.Context, body []byte) (string, error) {
	out, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", &PublishError{Queue: s.queueURL, Err: err}
	}
	return aws.ToString(out.MessageId), nil
}

// Receive long-polls the queue for up to max messages
func (s *SQS) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max > sqsMaxBatch {
		max = sqsMaxBatch
	}
	waitSecs := int32(wait / time.Second)
	if waitSecs > sqsMaxWaitSecs {
		waitSecs = sqsMaxWaitSecs
	}

	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     waitSecs,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("receiving from %s: %w", s.queueURL, err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		attempt := 1
		if count, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(count); err == nil {
				attempt = n
			}
		}
		messages = append(messages, Message{
			ID:              aws.ToString(m.MessageId),
			Body:            []byte(aws.ToString(m.Body)),
			Receipt:         aws.ToString(m.ReceiptHandle),
			DeliveryAttempt: attempt,
		})
	}
	return messages, nil
}

// Acknowledge deletes the message permanently
func (s *SQS) Acknowledge(ctx context.Context, receipt string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return &AckError{Queue: s.queueURL, Receipt: receipt, Err: err}
	}
	return nil
}

// Release zeroes the visibility timeout so the message is redelivered promptly
func (s *SQS) Release(ctx context.Context, receipt string) error {
	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: 0,
	})
	return err
}

// Close is a no-op; the SQS client holds no persistent connection
func (s *SQS) Close() error {
	return nil
}

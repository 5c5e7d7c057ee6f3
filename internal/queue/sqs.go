package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
)

// SQS caps a single receive at 10 messages.
const maxReceiveBatch = 10

// sqsAPI is the subset of the SQS client the transport uses. Narrowed for
// test substitution.
type sqsAPI interface {
	SendMessageWithContext(ctx aws.Context, input *sqs.SendMessageInput, opts ...request.Option) (*sqs.SendMessageOutput, error)
	ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageWithContext(ctx aws.Context, input *sqs.DeleteMessageInput, opts ...request.Option) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibilityWithContext(ctx aws.Context, input *sqs.ChangeMessageVisibilityInput, opts ...request.Option) (*sqs.ChangeMessageVisibilityOutput, error)
	PurgeQueueWithContext(ctx aws.Context, input *sqs.PurgeQueueInput, opts ...request.Option) (*sqs.PurgeQueueOutput, error)
	GetQueueAttributesWithContext(ctx aws.Context, input *sqs.GetQueueAttributesInput, opts ...request.Option) (*sqs.GetQueueAttributesOutput, error)
}

// SQSConfig configures the SQS-backed transport.
type SQSConfig struct {
	Region            string
	Endpoint          string // non-empty for localstack / compatible brokers
	QueueURL          string
	DeadLetterURL     string
	VisibilityTimeout time.Duration
}

// SQSTransport implements Transport on AWS SQS.
type SQSTransport struct {
	client            sqsAPI
	queueURL          string
	dlqURL            string
	visibilityTimeout time.Duration
}

// NewSQSTransport builds a transport with a fresh SQS client.
func NewSQSTransport(cfg SQSConfig) (*SQSTransport, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("queue url is required")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return &SQSTransport{
		client:            sqs.New(sess),
		queueURL:          cfg.QueueURL,
		dlqURL:            cfg.DeadLetterURL,
		visibilityTimeout: cfg.VisibilityTimeout,
	}, nil
}

// Enqueue implements Transport.
func (t *SQSTransport) Enqueue(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]*sqs.MessageAttributeValue, len(attrs))
		for name, value := range attrs {
			input.MessageAttributes[name] = &sqs.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}

	out, err := t.client.SendMessageWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sqs send: %w", err)
	}
	return aws.StringValue(out.MessageId), nil
}

// Receive implements Transport. max is clamped to the SQS batch limit of 10.
func (t *SQSTransport) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max < 1 {
		max = 1
	}
	if max > maxReceiveBatch {
		max = maxReceiveBatch
	}

	out, err := t.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(t.queueURL),
		MaxNumberOfMessages:   aws.Int64(int64(max)),
		WaitTimeSeconds:       aws.Int64(int64(wait / time.Second)),
		VisibilityTimeout:     aws.Int64(int64(t.visibilityTimeout / time.Second)),
		MessageAttributeNames: []*string{aws.String(sqs.QueueAttributeNameAll)},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{
			MessageID:     aws.StringValue(m.MessageId),
			Body:          []byte(aws.StringValue(m.Body)),
			ReceiptHandle: aws.StringValue(m.ReceiptHandle),
			Attributes:    make(map[string]string, len(m.MessageAttributes)),
		}
		for name, attr := range m.MessageAttributes {
			msg.Attributes[name] = aws.StringValue(attr.StringValue)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Delete implements Transport.
func (t *SQSTransport) Delete(ctx context.Context, receiptHandle string) error {
	_, err := t.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(t.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

// ChangeVisibility implements Transport.
func (t *SQSTransport) ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error {
	_, err := t.client.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(t.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: aws.Int64(int64(timeout / time.Second)),
	})
	if err != nil {
		return fmt.Errorf("sqs change visibility: %w", err)
	}
	return nil
}

// SendToDeadLetter implements Transport. The DLQ body is the original payload
// annotated with dlqReason and dlqTimestamp.
func (t *SQSTransport) SendToDeadLetter(ctx context.Context, body []byte, reason string) error {
	if t.dlqURL == "" {
		return errors.New("dead-letter queue not configured")
	}

	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		// Non-JSON payloads are preserved verbatim under a single key.
		payload = map[string]any{"payload": string(body)}
	}
	payload["dlqReason"] = reason
	payload["dlqTimestamp"] = time.Now().UTC().Format(time.RFC3339)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode dlq payload: %w", err)
	}

	out, err := t.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.dlqURL),
		MessageBody: aws.String(string(encoded)),
	})
	if err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}

	slog.Info("message sent to dead-letter queue", "reason", reason, "message_id", aws.StringValue(out.MessageId))
	return nil
}

// Purge implements Transport. Destructive: removes every message in the queue.
func (t *SQSTransport) Purge(ctx context.Context) error {
	_, err := t.client.PurgeQueueWithContext(ctx, &sqs.PurgeQueueInput{
		QueueUrl: aws.String(t.queueURL),
	})
	if err != nil {
		return fmt.Errorf("sqs purge: %w", err)
	}
	slog.Warn("queue purged", "queue_url", t.queueURL)
	return nil
}

// Stats returns approximate queue depth counters from queue attributes.
func (t *SQSTransport) Stats(ctx context.Context) (*Stats, error) {
	out, err := t.client.GetQueueAttributesWithContext(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(t.queueURL),
		AttributeNames: []*string{
			aws.String(sqs.QueueAttributeNameApproximateNumberOfMessages),
			aws.String(sqs.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
			aws.String(sqs.QueueAttributeNameApproximateNumberOfMessagesDelayed),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs queue attributes: %w", err)
	}

	parse := func(name string) int64 {
		v, _ := strconv.ParseInt(aws.StringValue(out.Attributes[name]), 10, 64)
		return v
	}
	return &Stats{
		VisibleMessages:  parse(sqs.QueueAttributeNameApproximateNumberOfMessages),
		InFlightMessages: parse(sqs.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
		DelayedMessages:  parse(sqs.QueueAttributeNameApproximateNumberOfMessagesDelayed),
	}, nil
}

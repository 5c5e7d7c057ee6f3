// Package queue provides the message-bus abstraction behind the async job
// system. Messages survive receipt until explicitly deleted; an unacknowledged
// message becomes redeliverable once its visibility window lapses.
package queue

import (
	"context"
	"time"
)

// Attribute names attached to every job message so consumers can route
// without deserializing the body.
const (
	AttrJobID   = "jobId"
	AttrJobType = "jobType"
)

// Message is one received queue entry. ReceiptHandle acknowledges this
// specific delivery, not the message itself.
type Message struct {
	MessageID     string
	Body          []byte
	ReceiptHandle string
	Attributes    map[string]string
}

// Transport is the narrow message-bus contract the worker loop and the outbox
// relay depend on. Implementations deliver at-least-once; consumers must be
// idempotent.
type Transport interface {
	// Enqueue publishes a payload with routing attributes and returns the
	// broker-assigned message id.
	Enqueue(ctx context.Context, body []byte, attrs map[string]string) (string, error)
	// Receive long-polls for up to max messages (clamped to the broker batch
	// limit), waiting at most wait for messages to arrive.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	// Delete acknowledges a delivery, removing the message from the queue.
	Delete(ctx context.Context, receiptHandle string) error
	// ChangeVisibility adjusts how long the delivery stays hidden from other
	// consumers. A zero timeout releases the message immediately.
	ChangeVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error
	// SendToDeadLetter publishes the original payload to the dead-letter queue
	// annotated with a reason and timestamp.
	SendToDeadLetter(ctx context.Context, body []byte, reason string) error
	// Purge deletes all messages. Destructive, operator-only.
	Purge(ctx context.Context) error
}

// Stats reports approximate queue depth counters.
type Stats struct {
	VisibleMessages  int64
	InFlightMessages int64
	DelayedMessages  int64
}

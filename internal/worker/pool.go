// Package worker runs the queue consumer loop: long-poll receives, bounded
// concurrent handler dispatch, and delete-on-success acknowledgement.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/primepisodes/media-engine/internal/queue"
)

// Handler processes one delivery. A nil return acknowledges (deletes) the
// message; an error leaves it in flight for redelivery once its visibility
// window lapses.
type Handler interface {
	HandleMessage(ctx context.Context, msg queue.Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg queue.Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg queue.Message) error {
	return f(ctx, msg)
}

const (
	defaultConcurrency = 5
	defaultPollWait    = 20 * time.Second
	receiveErrBackoff  = 5 * time.Second
	slotWait           = 250 * time.Millisecond
)

// Pool is the consumer loop. At most concurrency handlers run at once;
// receive size shrinks to the free slots so the pool never holds messages it
// cannot start.
type Pool struct {
	transport   queue.Transport
	handler     Handler
	concurrency int
	pollWait    time.Duration
	errBackoff  time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{} // keyed by receipt handle
	wg       sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency bounds simultaneous handler executions.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollWait sets the long-poll wait per receive.
func WithPollWait(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollWait = d }
}

// NewPool creates a consumer pool over transport dispatching to handler.
func NewPool(transport queue.Transport, handler Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		transport:   transport,
		handler:     handler,
		concurrency: defaultConcurrency,
		pollWait:    defaultPollWait,
		errBackoff:  receiveErrBackoff,
		inFlight:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InFlight reports how many deliveries are currently being handled.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// Run consumes until ctx is cancelled, then waits for in-flight handlers to
// finish before returning. Receive errors are logged and retried; they never
// stop the loop.
func (p *Pool) Run(ctx context.Context) error {
	slog.Info("worker pool started", "concurrency", p.concurrency, "poll_wait", p.pollWait)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker pool draining", "in_flight", p.InFlight())
			p.wg.Wait()
			slog.Info("worker pool stopped")
			return ctx.Err()
		default:
		}

		free := p.concurrency - p.InFlight()
		if free <= 0 {
			sleepCtx(ctx, slotWait)
			continue
		}

		msgs, err := p.transport.Receive(ctx, free, p.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("receive failed", "error", err)
			sleepCtx(ctx, p.errBackoff)
			continue
		}

		for _, msg := range msgs {
			p.dispatch(ctx, msg)
		}
	}
}

func (p *Pool) dispatch(ctx context.Context, msg queue.Message) {
	p.mu.Lock()
	if _, dup := p.inFlight[msg.ReceiptHandle]; dup {
		p.mu.Unlock()
		return
	}
	p.inFlight[msg.ReceiptHandle] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inFlight, msg.ReceiptHandle)
			p.mu.Unlock()
		}()

		// Shutdown must not abort a handler mid-run; the drain in Run waits
		// for completion instead.
		hctx := context.WithoutCancel(ctx)

		if err := p.handler.HandleMessage(hctx, msg); err != nil {
			slog.Error("message handling failed, left for redelivery",
				"message_id", msg.MessageID, "error", err)
			return
		}

		if err := p.transport.Delete(hctx, msg.ReceiptHandle); err != nil {
			slog.Error("failed to acknowledge message",
				"message_id", msg.MessageID, "error", err)
		}
	}()
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

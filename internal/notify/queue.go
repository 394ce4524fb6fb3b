// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/pkg/errutil"
)

// Queue defaults.
const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 30 * time.Second
)

type message struct {
	ctx     context.Context
	to      string
	subject string
	body    string
}

// Queue hands messages to a single worker that delivers them through the
// wrapped notifier. Send never blocks: a full or stopped queue is reported
// as DELIVERY_FAILED.
type Queue struct {
	next        auth.Notifier
	name        string
	logger      *slog.Logger
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan message
	done   chan struct{}
}

// NewQueue starts the delivery worker. size <= 0 selects DefaultQueueSize.
func NewQueue(next auth.Notifier, size int, logger *slog.Logger) (*Queue, error) {
	if next == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		next:        next,
		name:        notifierName(next),
		logger:      logger,
		sendTimeout: DefaultSendTimeout,
		jobs:        make(chan message, size),
		done:        make(chan struct{}),
	}
	go q.run()
	return q, nil
}

func notifierName(n auth.Notifier) string {
	if named, ok := n.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "custom"
}

// Name identifies the wrapped notifier in metrics.
func (q *Queue) Name() string { return q.name }

// Send enqueues a message. The request context's values (trace ids) carry
// over to delivery; its cancellation does not.
func (q *Queue) Send(ctx context.Context, to, subject, htmlBody string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return oops.Code(auth.CodeDeliveryFailed).
			With("notifier", q.name).
			Errorf("notification queue is stopped")
	}

	select {
	case q.jobs <- message{ctx: context.WithoutCancel(ctx), to: to, subject: subject, body: htmlBody}:
		return nil
	default:
		return oops.Code(auth.CodeDeliveryFailed).
			With("notifier", q.name).
			With("capacity", cap(q.jobs)).
			Errorf("notification queue is full")
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for msg := range q.jobs {
		q.deliver(msg)
	}
}

func (q *Queue) deliver(msg message) {
	ctx, cancel := context.WithTimeout(msg.ctx, q.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			observability.RecordNotifierFailure(q.name)
			errutil.LogError(q.logger, "queued email delivery panicked",
				oops.Code(auth.CodeDeliveryFailed).With("notifier", q.name).Errorf("panic: %v", r))
		}
	}()

	if err := q.next.Send(ctx, msg.to, msg.subject, msg.body); err != nil {
		observability.RecordNotifierFailure(q.name)
		errutil.LogError(q.logger, "queued email delivery failed",
			oops.Code(auth.CodeDeliveryFailed).With("notifier", q.name).Wrap(err))
	}
}

// Stop refuses new messages, then waits until queued ones are delivered or
// ctx ends. Calling Stop again is safe.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return oops.Code("NOTIFY_QUEUE_STOP_TIMEOUT").
			With("pending", len(q.jobs)).
			Wrap(ctx.Err())
	}
}

var _ auth.Notifier = (*Queue)(nil)

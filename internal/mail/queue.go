package mail

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrQueueFull is returned when the in-process buffer cannot take more mail.
var ErrQueueFull = errors.New("mail queue full")

const (
	DefaultQueueSize    = 256
	DefaultDrainTimeout = 5 * time.Second
)

// Queue decouples request handling from delivery. Send only enqueues; Run
// consumes the buffer and delivers through the wrapped sender.
type Queue struct {
	sender       Sender
	inbox        chan Message
	logger       *slog.Logger
	drainTimeout time.Duration
}

func NewQueue(sender Sender, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		sender:       sender,
		inbox:        make(chan Message, size),
		logger:       logger,
		drainTimeout: DefaultDrainTimeout,
	}
}

// Send enqueues msg without blocking.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.inbox <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued mail until ctx is cancelled, then drains what is
// already buffered for at most the drain timeout. Delivery errors are logged
// and never stop the worker.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return ctx.Err()
		case msg := <-q.inbox:
			q.deliver(ctx, msg)
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), q.drainTimeout)
	defer cancel()
	for {
		select {
		case msg := <-q.inbox:
			q.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, msg Message) {
	if err := q.sender.Send(ctx, msg); err != nil {
		q.logger.ErrorContext(ctx, "mail delivery failed",
			"message_id", msg.ID,
			"to", msg.To,
			"error", err,
		)
	}
}

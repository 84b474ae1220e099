package mail

import (
	"context"
	"log/slog"

	"evoto/pkg/platform/circuit"
)

// Failover sends through primary and switches to fallback once the breaker opens.
type Failover struct {
	primary  Sender
	fallback Sender
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailover(primary, fallback Sender, breaker *circuit.Breaker, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (f *Failover) Send(ctx context.Context, msg Message) error {
	err := f.primary.Send(ctx, msg)
	if err == nil {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "mail outbox recovered", "breaker", f.breaker.Name())
		}
		return nil
	}

	useFallback, change := f.breaker.RecordFailure()
	if change.Opened {
		f.logger.WarnContext(ctx, "mail outbox circuit opened", "breaker", f.breaker.Name(), "error", err)
	}
	if useFallback {
		return f.fallback.Send(ctx, msg)
	}
	return err
}

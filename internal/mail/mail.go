// Package mail delivers voter confirmation messages.
//
// Senders are composed: Confirmer renders a Message and hands it to a Queue,
// whose worker sends through a Failover of the Kafka outbox and the log sender.
package mail

import (
	"context"
	"log/slog"
	"time"
)

//go:generate mockgen -source=mail.go -destination=mocks/mocks.go -package=mocks Sender

// Message is one outbound e-mail. It is also the JSON payload of the outbox topic.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTMLBody  string    `json:"html_body"`
	TextBody  string    `json:"text_body"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender hands a message to a delivery mechanism.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. It is the
// development sender and the fallback while the outbox is down.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail not delivered, logged only",
		"message_id", msg.ID,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

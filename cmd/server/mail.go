package main

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"evoto/internal/mail"
	"evoto/internal/platform/config"
	"evoto/internal/platform/kafka"
	"evoto/pkg/platform/circuit"
)

// openMailSender returns the confirmation mail sender. With brokers configured,
// mails go through a queue into the Kafka outbox and fall back to the log while
// the broker is failing. The queue worker runs in g.
func openMailSender(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger) (mail.Sender, func(), error) {
	logSender := mail.NewLogSender(log)

	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("KAFKA_BROKERS not set, confirmation mails are only logged")
		return logSender, func() {}, nil
	}
	if err := kafka.EnsureTopics(ctx, client, 1, 1, cfg.Kafka.MailTopic); err != nil {
		client.Close()
		return nil, nil, err
	}

	sender := mail.NewFailover(
		mail.NewKafkaOutbox(client, cfg.Kafka.MailTopic),
		logSender,
		circuit.New("mail-outbox"),
		log,
	)
	queue := mail.NewQueue(sender, mail.DefaultQueueSize, log)
	g.Go(func() error { return queue.Run(ctx) })
	return queue, client.Close, nil
}

func newConfirmer(cfg config.Config, sender mail.Sender) *mail.Confirmer {
	return mail.NewConfirmer(sender, cfg.Mail.From, cfg.Mail.Subject, cfg.Server.PublicURL)
}

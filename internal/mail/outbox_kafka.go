package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client the outbox needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaOutbox publishes messages to a topic consumed by the mail relay.
// Records are keyed by recipient so one voter's mails stay ordered.
type KafkaOutbox struct {
	producer Producer
	topic    string
}

func NewKafkaOutbox(producer Producer, topic string) *KafkaOutbox {
	return &KafkaOutbox{producer: producer, topic: topic}
}

func (o *KafkaOutbox) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}
	record := &kgo.Record{
		Topic: o.topic,
		Key:   []byte(msg.To),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "message-id", Value: []byte(msg.ID)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := o.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish mail message: %w", err)
	}
	return nil
}

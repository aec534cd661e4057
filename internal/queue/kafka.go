package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events keyed by event ID, so all messages about one
// event land on the same partition in order.
type KafkaPublisher struct {
	w *kafkaGo.Writer
}

// Publishes are one event each; the writer's 1s default would hold every sale.
const kafkaBatchTimeout = 5 * time.Millisecond

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkaGo.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           kafkaBatchTimeout,
		MaxAttempts:            3,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev TicketEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(strconv.FormatInt(ev.EventID, 10)),
		Value: payload,
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

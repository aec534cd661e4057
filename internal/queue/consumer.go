package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/iliyamo/event-ticketing/internal/config"
)

const auditGroupID = "ticket-audit"

// AuditLog appends one human-readable line per lifecycle event to
// <dir>/tickets.log.
type AuditLog struct {
	dir string
	mu  sync.Mutex
}

func NewAuditLog(dir string) *AuditLog { return &AuditLog{dir: dir} }

// Path returns the log file location.
func (a *AuditLog) Path() string { return filepath.Join(a.dir, "tickets.log") }

// Append writes ev to the log, creating the directory on first use.
func (a *AuditLog) Append(ev TicketEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", a.dir, err)
	}
	f, err := os.OpenFile(a.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(formatAuditLine(ev)); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func formatAuditLine(ev TicketEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | id=%s | ticket_id=%d | event_id=%d",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ID, ev.TicketID, ev.EventID)
	if ev.BuyerName != "" {
		fmt.Fprintf(&b, " | buyer=%q", ev.BuyerName)
	}
	if ev.Price != nil {
		fmt.Fprintf(&b, " | price=%s", ev.Price.StringFixed(2))
	}
	if ev.RemainingAvailable != nil {
		fmt.Fprintf(&b, " | remaining=%d", *ev.RemainingAvailable)
	}
	b.WriteByte('\n')
	return b.String()
}

func (a *AuditLog) handleMessage(body []byte) error {
	var ev TicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	return a.Append(ev)
}

// RunAuditConsumer consumes lifecycle events from the configured broker
// into the audit log until ctx is cancelled.
func RunAuditConsumer(ctx context.Context, cfg config.BrokerConfig) error {
	sink := NewAuditLog(cfg.AuditLogDir)
	switch cfg.Kind {
	case config.BrokerAMQP:
		return consumeAMQP(ctx, cfg.AMQPURL, cfg.Topic, sink)
	case config.BrokerKafka:
		return consumeKafka(ctx, cfg.KafkaBrokers, cfg.Topic, sink)
	}
	return fmt.Errorf("audit consumer needs a broker, BROKER=%q", cfg.Kind)
}

// consumeAMQP dials with exponential backoff and keeps reconnecting until
// ctx is done.
func consumeAMQP(ctx context.Context, url, queueName string, sink *AuditLog) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			slog.Warn("audit-consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queueName, sink)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("audit-consumer: consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, sink *AuditLog) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		slog.Warn("audit-consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := sink.handleMessage(d.Body); err != nil {
				slog.Error("audit-consumer: handle message failed", "err", err, "message_id", d.MessageId)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func consumeKafka(ctx context.Context, brokers []string, topic string, sink *AuditLog) error {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: auditGroupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("audit-consumer: shutting down", "topic", topic)
				return ctx.Err()
			}
			slog.Error("audit-consumer: read failed", "topic", topic, "err", err)
			continue
		}
		if err := sink.handleMessage(msg.Value); err != nil {
			slog.Error("audit-consumer: handle message failed", "topic", topic, "offset", msg.Offset, "err", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

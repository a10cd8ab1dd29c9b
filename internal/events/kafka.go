package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes lead-status events keyed by lead id so each
// lead's transitions land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (p *KafkaPublisher) PublishLeadStatus(ctx context.Context, event LeadStatusEvent) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.LeadID.String()),
		Value: msg,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads lead-status events and hands them to the handler.
// Offsets commit only after the handler returns, so a crash replays the
// event; the handler's idempotence absorbs the duplicate.
type KafkaConsumer struct {
	reader  *kafka.Reader
	handler Handler
	log     *zap.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler Handler, log *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		handler: handler,
		log:     log.Named("events.kafka"),
	}
}

func (c *KafkaConsumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("fetch message", zap.Error(err))
			return
		}

		var event LeadStatusEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Error("malformed lead status event", zap.Error(err))
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		if err := c.handler.HandleLeadStatus(ctx, event); err != nil {
			// Leave the offset uncommitted; the event replays on restart.
			c.log.Error("handle lead status event",
				zap.String("lead_id", event.LeadID.String()),
				zap.Error(err),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit offset", zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

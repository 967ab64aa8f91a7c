package realtime

import (
	"context"
	"encoding/json"
	"time"

	"facility-alerting/internal/logging"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards events to a topic keyed by channel so downstream
// consumers see each building's events in order.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *logging.Logger
	timeout time.Duration
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(broker, topic string, logger *logging.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			Async:                  true,
			AllowAutoTopicCreation: true,
		},
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (p *KafkaPublisher) EmitToBuilding(ctx context.Context, channel, event string, payload any) {
	value, err := json.Marshal(NewEnvelope(channel, event, payload))
	if err != nil {
		p.logger.Errorf("Failed to encode %s event for channel %s: %v", event, channel, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channel),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event)},
		},
	})
	if err != nil {
		p.logger.Errorf("Failed to publish %s event for channel %s: %v", event, channel, err)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Package kafka consumes meter readings from Kafka and feeds them to the
// detector.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
)

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Ingester is the detector entry point.
type Ingester interface {
	Ingest(ctx context.Context, r models.Reading) ([]models.Alert, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   messageReader
	ingester Ingester
	logger   *logging.Logger
}

func NewConsumer(cfg Config, ingester Ingester, logger *logging.Logger) (*Consumer, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka broker and topic are required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "facility-alerting"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Broker},
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: r, ingester: ingester, logger: logger}, nil
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")
		if err := c.Run(ctx); err != nil {
			c.logger.Errorf("Kafka consumer stopped: %v", err)
			return
		}
		c.logger.Infof("Kafka consumer stopped")
	}()
}

// Run reads messages until ctx is cancelled. Every message is committed
// after handling; malformed messages and ingestion failures are logged.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message failed: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			c.logger.WithField("offset", msg.Offset).Errorf("Failed to ingest reading: %v", err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Errorf("Commit failed at offset %d: %v", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var r models.Reading
	if err := json.Unmarshal(msg.Value, &r); err != nil {
		c.logger.Errorf("Unmarshal message failed: %v", err)
		return nil
	}
	if r.BuildingID < 1 || len(r.Values) == 0 {
		c.logger.Errorf("Invalid message: missing building_id or values")
		return nil
	}
	if r.Kind == "" {
		r.Kind = models.ReadingKindEnergy
	}

	alerts, err := c.ingester.Ingest(ctx, r)
	if err != nil {
		return err
	}
	c.logger.WithField("building_id", r.BuildingID).Debugf("Processed reading, %d alert(s)", len(alerts))
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

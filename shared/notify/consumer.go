package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/events"
)

// Handler processes one lifecycle event.
type Handler interface {
	Handle(ctx context.Context, e events.Event) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads lifecycle events from Kafka and hands them to a Handler.
// Offsets are committed after handling, so a crash replays at most the
// in-flight event.
type Consumer struct {
	reader  messageReader
	handler Handler
	log     logrus.FieldLogger
}

func NewKafkaConsumer(broker, topic, groupID string, h Handler, log logrus.FieldLogger) *Consumer {
	if topic == "" {
		topic = events.DefaultTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return newConsumer(reader, h, log)
}

func newConsumer(r messageReader, h Handler, log logrus.FieldLogger) *Consumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consumer{reader: r, handler: h, log: log}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("Starting lifecycle event consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.WithError(err).Error("Error reading event message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var e events.Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			c.log.WithFields(logrus.Fields{"offset": msg.Offset, "partition": msg.Partition}).
				WithError(err).Error("Skipping undecodable event")
		} else if err := c.handler.Handle(ctx, e); err != nil {
			c.log.WithField("event_id", e.ID).WithError(err).Error("Event handling failed")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Error("Failed to commit event offset")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/metrics"
)

var (
	// ErrQueueFull is returned when the producer buffer is saturated and
	// the event was dropped.
	ErrQueueFull = errors.New("event queue full, event dropped")
	// ErrProducerClosed is returned after Close.
	ErrProducerClosed = errors.New("event producer closed")
)

const (
	defaultQueueSize   = 1000
	defaultWorkerCount = 4
	writeTimeout       = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes events through a bounded queue drained by a
// worker pool, so request paths never block on the broker.
type KafkaProducer struct {
	writer      messageWriter
	topic       string
	queue       chan Event
	workerCount int
	log         logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewKafkaProducer creates a producer writing to topic on broker.
func NewKafkaProducer(broker, topic string, log logrus.FieldLogger) *KafkaProducer {
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, topic, defaultWorkerCount, defaultQueueSize, log)
}

func newProducer(w messageWriter, topic string, workers, queueSize int, log logrus.FieldLogger) *KafkaProducer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	kp := &KafkaProducer{
		writer:      w,
		topic:       topic,
		queue:       make(chan Event, queueSize),
		workerCount: workers,
		log:         log.WithField("component", "event_producer"),
	}
	for i := 0; i < kp.workerCount; i++ {
		kp.wg.Add(1)
		go kp.worker(i)
	}
	return kp
}

func (kp *KafkaProducer) worker(id int) {
	defer kp.wg.Done()
	for event := range kp.queue {
		if err := kp.send(event); err != nil {
			metrics.EventsPublished.WithLabelValues(string(event.Type), "failed").Inc()
			kp.log.WithFields(logrus.Fields{
				"worker":     id,
				"event_id":   event.ID,
				"event_type": event.Type,
			}).WithError(err).Error("Failed to publish event")
			continue
		}
		metrics.EventsPublished.WithLabelValues(string(event.Type), "sent").Inc()
	}
}

// Publish queues the event without blocking.
func (kp *KafkaProducer) Publish(ctx context.Context, e Event) error {
	kp.mu.RLock()
	defer kp.mu.RUnlock()
	if kp.closed {
		return ErrProducerClosed
	}
	select {
	case kp.queue <- e:
		return nil
	default:
		metrics.EventsPublished.WithLabelValues(string(e.Type), "dropped").Inc()
		return ErrQueueFull
	}
}

func (kp *KafkaProducer) send(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: kp.topic,
		Key:   []byte(e.GymID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "gym_id", Value: []byte(e.GymID.String())},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}
	return nil
}

// Close stops accepting events, drains the queue and closes the writer.
func (kp *KafkaProducer) Close() error {
	kp.mu.Lock()
	if kp.closed {
		kp.mu.Unlock()
		return nil
	}
	kp.closed = true
	close(kp.queue)
	kp.mu.Unlock()

	kp.wg.Wait()

	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	kp.log.Info("Event producer shut down")
	return nil
}

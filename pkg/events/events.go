// Package events ships domain events (payment outcomes, surfaced toasts) to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"klub/pkg/notify"
)

const publishTimeout = 10 * time.Second

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Service   string    `json:"service"`
	Subject   string    `json:"subject,omitempty"`
	Data      any       `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Kafka publishes events as JSON messages keyed by subject.
type Kafka struct {
	ServiceName string

	w *kafka.Writer
}

func NewKafka(serviceName, addr, topic string, batch int) *Kafka {
	return &Kafka{
		ServiceName: serviceName,
		w: &kafka.Writer{
			Addr:      kafka.TCP(addr),
			Topic:     topic,
			BatchSize: batch,
			Balancer:  &kafka.Hash{},
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	msg, err := k.message(e)
	if err != nil {
		return err
	}

	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s event to Kafka: %w", e.Kind, err)
	}
	log.Debugf("[events] %s event sent to Kafka subject:%s", e.Kind, e.Subject)
	return nil
}

func (k *Kafka) message(e Event) (kafka.Message, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Service == "" {
		e.Service = k.ServiceName
	}

	b, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal %s event: %w", e.Kind, err)
	}

	return kafka.Message{Key: []byte(e.Subject), Value: b}, nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

// CreateTopic makes sure the topic exists on a single-broker setup.
func CreateTopic(broker, topic string) error {
	conn, err := kafka.DialContext(context.Background(), "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}

// Toasts mirrors every toast to a publisher without blocking the caller.
type Toasts struct {
	Publisher Publisher
}

func (t Toasts) ShowToast(toast notify.Toast) {
	if t.Publisher == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		err := t.Publisher.Publish(ctx, Event{
			Timestamp: time.Now().UTC(),
			Kind:      "toast." + string(toast.Type),
			Subject:   toast.Title,
			Data:      toast,
		})
		if err != nil {
			log.Errorf("[events] failed to publish toast %q: %v", toast.Title, err)
		}
	}()
}

package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"newsletter_service/internal/metrics"
)

type Producer struct {
	topic    string
	producer sarama.SyncProducer
}

func NewSyncProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is empty")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 500 * time.Millisecond

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create sarama sync producer: %w", err)
	}

	return &Producer{
		topic:    topic,
		producer: prod,
	}, nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// PublishDispatchResult keys events by message id so re-dispatches of the
// same newsletter land on one partition in order.
func (p *Producer) PublishDispatchResult(ev *DispatchEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if ev.MessageID <= 0 {
		return fmt.Errorf("invalid message id")
	}

	b, err := json.Marshal(ev)
	if err != nil {
		metrics.IncKafkaError("producer", "marshal")
		return fmt.Errorf("marshal dispatch event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(strconv.FormatInt(ev.MessageID, 10)),
		Value:     sarama.ByteEncoder(b),
		Timestamp: time.Now(),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		metrics.IncKafkaError("producer", "send")
		return fmt.Errorf("send kafka message: %w", err)
	}

	metrics.IncKafkaPublished()
	return nil
}

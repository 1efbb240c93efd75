package kafka

import (
	"Clubhouse/internal/api/config"
	"Clubhouse/internal/pkg/event"
	"context"
	log "log/slog"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// EventProducer 把私信事件写入 Kafka，key 为会话 ID
type EventProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewEventProducer(cfg config.KafkaConfig) (*EventProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, err
	}
	log.Info("Kafka producer initialized", "topic", cfg.Producer.Topic, "brokers", cfg.Brokers)
	return NewEventProducerWith(producer, cfg.Producer.Topic), nil
}

// NewEventProducerWith 使用已有的 SyncProducer
func NewEventProducerWith(producer sarama.SyncProducer, topic string) *EventProducer {
	return &EventProducer{producer: producer, topic: topic}
}

func (s *EventProducer) Publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(env.ConversationID, 10)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(env.Type)},
			{Key: []byte("event_id"), Value: []byte(env.ID)},
		},
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	log.DebugContext(ctx, "Kafka event sent", "event_id", env.ID, "partition", partition, "offset", offset)
	return nil
}

func (s *EventProducer) Close() error {
	return s.producer.Close()
}

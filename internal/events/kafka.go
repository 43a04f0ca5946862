package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	k "github.com/segmentio/kafka-go"
	"github.com/vedran77/pulsechat/internal/observability"
)

type KafkaPublisher struct {
	w *k.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &k.Writer{
		Addr:                   k.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &k.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           k.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []k.Message, err error) {
			if err != nil {
				observability.IncEventPublishError("kafka")
				log.Warn().Err(err).Int("messages", len(messages)).Msg("kafka async write failed")
			}
		},
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka publisher ready")
	return &KafkaPublisher{w: w}
}

// Publish keys the record by routingKey.
func (p *KafkaPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.w.WriteMessages(ctx, k.Message{
		Key:   []byte(routingKey),
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		observability.IncEventPublishError("kafka")
	}
	return err
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Publisher ships domain events to the configured broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

const (
	RoutingMessageCreated = "message.created"
	RoutingChannelCreated = "channel.created"
	RoutingChannelDeleted = "channel.deleted"
)

type MessageCreated struct {
	Type      string    `json:"type"`
	MessageID uuid.UUID `json:"message_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ChannelChanged struct {
	Type      string    `json:"type"`
	ChannelID uuid.UUID `json:"channel_id"`
	Name      string    `json:"name"`
	IsPrivate bool      `json:"is_private"`
	ActorID   uuid.UUID `json:"actor_id"`
	At        time.Time `json:"at"`
}

type Config struct {
	Driver       string
	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string
}

// NewPublisher builds the driver named in cfg. Unknown drivers and
// connection failures fall back to the noop publisher.
func NewPublisher(cfg Config) Publisher {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "amqp":
		return NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return NoopPublisher{Reason: "events driver " + quoteOrEmpty(cfg.Driver)}
	}
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "unset"
	}
	return "\"" + s + "\""
}

// Mode reports the publisher mode for logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *KafkaPublisher:
		return "kafka"
	case *AMQPPublisher:
		return "amqp"
	case NoopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

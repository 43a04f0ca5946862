package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
)

// LocalNotifier receives relayed events on this instance.
type LocalNotifier interface {
	NotifyNewMessage(msg *domain.Message)
	NotifyChannelDeleted(channelID uuid.UUID)
}

const (
	relayKindMessage        = "message.new"
	relayKindChannelDeleted = "channel.deleted"
)

type relayEnvelope struct {
	Kind      string          `json:"kind"`
	ChannelID uuid.UUID       `json:"channel_id"`
	Message   *domain.Message `json:"message,omitempty"`
}

// Relay fans realtime events out to every server instance through Redis pub/sub.
// Each instance, the publisher included, delivers to its own hub from Run.
type Relay struct {
	r      *redis.Client
	topic  string
	local  LocalNotifier
	logger zerolog.Logger
}

func NewRelay(c *Client, topic string, local LocalNotifier) *Relay {
	return &Relay{
		r:      c.R,
		topic:  topic,
		local:  local,
		logger: observability.Component("relay"),
	}
}

func (rl *Relay) NotifyNewMessage(msg *domain.Message) {
	rl.publish(relayEnvelope{Kind: relayKindMessage, ChannelID: msg.ChannelID, Message: msg})
}

func (rl *Relay) NotifyChannelDeleted(channelID uuid.UUID) {
	rl.publish(relayEnvelope{Kind: relayKindChannelDeleted, ChannelID: channelID})
}

func (rl *Relay) publish(env relayEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		rl.logger.Error().Err(err).Msg("marshal relay envelope")
		return
	}
	if err := rl.r.Publish(context.Background(), rl.topic, data).Err(); err != nil {
		rl.logger.Warn().Err(err).Str("kind", env.Kind).Msg("relay publish failed, delivering locally")
		rl.dispatch(env)
	}
}

// Run subscribes to the relay topic until ctx is cancelled.
func (rl *Relay) Run(ctx context.Context) error {
	sub := rl.r.Subscribe(ctx, rl.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	rl.logger.Info().Str("topic", rl.topic).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			rl.handlePayload([]byte(m.Payload))
		}
	}
}

func (rl *Relay) handlePayload(payload []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		rl.logger.Warn().Err(err).Msg("drop malformed relay payload")
		return
	}
	rl.dispatch(env)
}

func (rl *Relay) dispatch(env relayEnvelope) {
	switch env.Kind {
	case relayKindMessage:
		if env.Message != nil {
			rl.local.NotifyNewMessage(env.Message)
		}
	case relayKindChannelDeleted:
		rl.local.NotifyChannelDeleted(env.ChannelID)
	default:
		rl.logger.Warn().Str("kind", env.Kind).Msg("unknown relay kind")
	}
}

package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

type NoopPublisher struct {
	Reason string
}

func (p NoopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	log.Debug().Str("routing_key", routingKey).Str("reason", p.Reason).Msg("noop publish")
	return nil
}

func (NoopPublisher) Close() error { return nil }

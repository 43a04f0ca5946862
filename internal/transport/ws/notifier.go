package ws

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulsechat/internal/domain"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyNewMessage(msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessageNew, &msg.ChannelID, MessagePayload{Message: *msg})
	if err != nil {
		log.Error().Err(err).Msg("ws notifier: marshal message")
		return
	}
	n.hub.BroadcastToChannel(msg.ChannelID, evt)
}

func (n *HubNotifier) NotifyChannelDeleted(channelID uuid.UUID) {
	evt, err := NewEvent(EventTypeChannelDeleted, &channelID, ChannelDeletedPayload{ID: channelID})
	if err != nil {
		log.Error().Err(err).Msg("ws notifier: marshal channel deletion")
		return
	}
	n.hub.CloseChannel(channelID, evt)
}

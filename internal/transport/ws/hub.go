package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/observability"
)

// Hub manages all active WebSocket clients and routes messages.
// A user may hold several connections at once.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
	stopped    chan struct{}
	logger     zerolog.Logger
}

type broadcastMsg struct {
	channelID uuid.UUID
	data      []byte
	// closeChannel drops every subscription to channelID after delivery.
	closeChannel bool
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		stopped:    make(chan struct{}),
		logger:     observability.Component("ws-hub"),
	}
}

// Run is the hub's event loop. It returns when ctx is done, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			for client := range h.clients {
				h.drop(client)
			}
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			observability.IncWSActive()
			h.logger.Info().Stringer("user_id", client.userID).Int("total", len(h.clients)).Msg("client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info().Stringer("user_id", client.userID).Int("total", len(h.clients)).Msg("client disconnected")
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.IsSubscribed(msg.channelID) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					h.logger.Warn().Stringer("user_id", client.userID).Msg("client buffer full, dropping")
					h.drop(client)
					continue
				}
				if msg.closeChannel {
					client.Unsubscribe(msg.channelID)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	close(client.done)
	observability.DecWSActive()
}

// Register hands a new client to the event loop. It reports false once
// the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

// Unregister removes a client. It is safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// BroadcastToChannel sends an event to all subscribers of a channel.
func (h *Hub) BroadcastToChannel(channelID uuid.UUID, event *Event) {
	h.enqueue(channelID, event, false)
}

// CloseChannel delivers a final event and then removes every subscription
// to the channel.
func (h *Hub) CloseChannel(channelID uuid.UUID, event *Event) {
	h.enqueue(channelID, event, true)
}

func (h *Hub) enqueue(channelID uuid.UUID, event *Event, closeChannel bool) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal event")
		return
	}
	observability.IncWSEvent("out", event.Type)
	select {
	case h.broadcast <- &broadcastMsg{
		channelID:    channelID,
		data:         data,
		closeChannel: closeChannel,
	}:
	case <-h.stopped:
	}
}

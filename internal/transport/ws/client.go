package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/observability"
	"github.com/vedran77/pulsechat/internal/service"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// ChannelAuthorizer decides whether a user may follow a channel.
type ChannelAuthorizer interface {
	CanAccess(ctx context.Context, userID, channelID uuid.UUID) error
}

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	auth   ChannelAuthorizer
	logger zerolog.Logger

	subscribedChannels map[uuid.UUID]struct{}
	mu                 sync.RWMutex

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, auth ChannelAuthorizer) *Client {
	return &Client{
		hub:                hub,
		conn:               conn,
		userID:             userID,
		auth:               auth,
		logger:             observability.Component("ws-client").With().Stringer("user_id", userID).Logger(),
		subscribedChannels: make(map[uuid.UUID]struct{}),
		send:               make(chan []byte, sendBufSize),
		done:               make(chan struct{}),
	}
}

// IsSubscribed checks if this client is subscribed to a channel.
func (c *Client) IsSubscribed(channelID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscribedChannels[channelID]
	return ok
}

func (c *Client) Subscribe(channelID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribedChannels[channelID] = struct{}{}
}

func (c *Client) Unsubscribe(channelID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribedChannels, channelID)
}

// ReadPump reads events from the WebSocket until the connection or ctx closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug().Msg("client closed connection")
			} else if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		observability.IncWSEvent("in", event.Type)
		c.handleEvent(ctx, &event)
	}
}

// WritePump writes queued events to the WebSocket and keeps it alive with pings.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Warn().Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.logger.Warn().Err(err).Msg("ping error")
				return
			}

		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeChannelSubscribe:
		p, ok := c.channelPayload(event)
		if !ok {
			return
		}
		if err := c.auth.CanAccess(ctx, c.userID, p.ChannelID); err != nil {
			switch {
			case errors.Is(err, service.ErrChannelNotFound):
				c.sendError("NOT_FOUND", "channel not found")
			case errors.Is(err, service.ErrNotChannelMember):
				c.sendError("FORBIDDEN", "not a member of this channel")
			default:
				c.logger.Error().Err(err).Stringer("channel_id", p.ChannelID).Msg("authorize subscription")
				c.sendError("INTERNAL", "could not subscribe")
			}
			return
		}
		c.Subscribe(p.ChannelID)
		c.sendEvent(EventTypeSubscribed, &p.ChannelID, nil)
		c.logger.Debug().Stringer("channel_id", p.ChannelID).Msg("subscribed")

	case EventTypeChannelUnsubscribe:
		p, ok := c.channelPayload(event)
		if !ok {
			return
		}
		c.Unsubscribe(p.ChannelID)

	case EventTypePing:
		c.sendEvent(EventTypePong, nil, nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

// channelPayload accepts the channel id either in the payload or on the envelope.
func (c *Client) channelPayload(event *Event) (ChannelPayload, bool) {
	var p ChannelPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid "+event.Type+" payload")
			return p, false
		}
	}
	if p.ChannelID == uuid.Nil && event.ChannelID != nil {
		p.ChannelID = *event.ChannelID
	}
	if p.ChannelID == uuid.Nil {
		c.sendError("INVALID_PAYLOAD", "channel_id required")
		return p, false
	}
	return p, true
}

func (c *Client) sendEvent(eventType string, channelID *uuid.UUID, payload any) {
	evt, err := NewEvent(eventType, channelID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
		observability.IncWSEvent("out", eventType)
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
}

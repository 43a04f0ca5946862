package httpbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/chat"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/transport/ws"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const subscribeTimeout = 10 * time.Second

// SubscribeInserts opens a WebSocket, subscribes to channelID and waits for
// the server's acknowledgement.
func (c *Client) SubscribeInserts(ctx context.Context, channelID uuid.UUID, onEvent func(domain.Message)) (chat.Subscription, error) {
	wsURL, err := c.wsURL()
	if err != nil {
		return nil, err
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, subscribeTimeout)
	defer cancelDial()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	if err := wsjson.Write(dialCtx, conn, ws.Event{Type: ws.EventTypeChannelSubscribe, ChannelID: &channelID}); err != nil {
		conn.Close(websocket.StatusInternalError, "")
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if err := awaitAck(dialCtx, conn, channelID); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		conn:    conn,
		cancel:  cancel,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	go sub.readLoop(runCtx, channelID)
	return sub, nil
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	return u.String(), nil
}

func awaitAck(ctx context.Context, conn *websocket.Conn, channelID uuid.UUID) error {
	for {
		var evt ws.Event
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			return fmt.Errorf("await subscription: %w", err)
		}
		switch evt.Type {
		case ws.EventTypeSubscribed:
			if evt.ChannelID != nil && *evt.ChannelID == channelID {
				return nil
			}
		case ws.EventTypeError:
			var p ws.ErrorPayload
			json.Unmarshal(evt.Payload, &p)
			if p.Code == "NOT_FOUND" || p.Code == "FORBIDDEN" {
				return fmt.Errorf("%w: %s", chat.ErrChannelNotFound, p.Message)
			}
			return fmt.Errorf("subscribe rejected: %s %s", p.Code, p.Message)
		}
	}
}

type subscription struct {
	conn    *websocket.Conn
	cancel  context.CancelFunc
	onEvent func(domain.Message)

	mu      sync.Mutex
	err     error
	closing bool
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	s.end(nil)
	return err
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		if !s.closing {
			s.err = err
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) readLoop(ctx context.Context, channelID uuid.UUID) {
	for {
		var evt ws.Event
		if err := wsjson.Read(ctx, s.conn, &evt); err != nil {
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			s.end(err)
			return
		}

		switch evt.Type {
		case ws.EventTypeMessageNew:
			var msg domain.Message
			if err := json.Unmarshal(evt.Payload, &msg); err != nil {
				continue
			}
			s.onEvent(msg)
		case ws.EventTypeChannelDeleted:
			if evt.ChannelID != nil && *evt.ChannelID == channelID {
				s.end(chat.ErrChannelDeleted)
				s.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

package ws

import (
	"context"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulsechat/internal/service"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(hub *Hub, jwtSecret string, auth ChannelAuthorizer, allowedOrigins []string) http.HandlerFunc {
	secret := []byte(jwtSecret)
	opts := &websocket.AcceptOptions{OriginPatterns: allowedOrigins}
	if slices.Contains(allowedOrigins, "*") {
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := service.ParseToken(tokenStr, secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.Warn().Err(err).Msg("ws: accept")
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := NewClient(hub, conn, userID, auth)
		if !hub.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		// The request context ends with this handler; the pumps outlive it.
		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		go func() {
			<-client.done
			cancel()
		}()
		go client.WritePump(ctx)
		go client.ReadPump(ctx)
	}
}

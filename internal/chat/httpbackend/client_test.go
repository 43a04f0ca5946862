package httpbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/chat"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/ws"
)

const testSecret = "test-secret"

type fixture struct {
	mux    *http.ServeMux
	srv    *httptest.Server
	hub    *ws.Hub
	client *Client
	self   uuid.UUID
}

type authorizerFunc func(ctx context.Context, userID, channelID uuid.UUID) error

func (f authorizerFunc) CanAccess(ctx context.Context, userID, channelID uuid.UUID) error {
	return f(ctx, userID, channelID)
}

func newFixture(t *testing.T, auth ws.ChannelAuthorizer) *fixture {
	t.Helper()
	if auth == nil {
		auth = authorizerFunc(func(context.Context, uuid.UUID, uuid.UUID) error { return nil })
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws.ServeWS(hub, testSecret, auth, []string{"*"}))
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	self := uuid.New()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": self.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	client := New(srv.URL, srv.Client())
	client.SetToken(token, self)
	client.SetBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	})

	return &fixture{mux: mux, srv: srv, hub: hub, client: client, self: self}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": code}})
}

func TestLoginStoresToken(t *testing.T) {
	f := newFixture(t, nil)
	userID := uuid.New()

	var gotAuth string
	f.mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in service.LoginInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ana@example.com", in.Email)
		writeJSON(w, http.StatusOK, service.AuthResponse{User: &domain.User{ID: userID, Username: "ana"}, AccessToken: "tok"})
	})
	f.mux.HandleFunc("GET /api/v1/channels", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []domain.Channel{{ID: uuid.New(), Name: "general"}})
	})

	u, err := f.client.Login(context.Background(), "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)
	assert.Equal(t, userID, f.client.UserID())

	channels, err := f.client.ListChannels(context.Background())
	require.NoError(t, err)
	assert.Len(t, channels, 1)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestInsertChannelMapsConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.mux.HandleFunc("POST /api/v1/channels", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusConflict, "NAME_TAKEN")
	})

	_, err := f.client.InsertChannel(context.Background(), "general", f.self, false)
	assert.ErrorIs(t, err, chat.ErrDuplicateChannel)

	_, err = f.client.InsertChannel(context.Background(), "general", uuid.New(), false)
	assert.ErrorIs(t, err, chat.ErrNotAuthorized)
}

func TestFindChannel(t *testing.T) {
	f := newFixture(t, nil)
	existing := domain.Channel{ID: uuid.New(), Name: "dm-a-b", IsPrivate: true}
	f.mux.HandleFunc("GET /api/v1/channels/lookup", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != existing.Name || r.URL.Query().Get("private") != "true" {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND")
			return
		}
		writeJSON(w, http.StatusOK, existing)
	})

	ch, err := f.client.FindChannel(context.Background(), existing.Name, true)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, existing.ID, ch.ID)

	ch, err = f.client.FindChannel(context.Background(), existing.Name, false)
	require.NoError(t, err)
	assert.Nil(t, ch)
}

func TestQueryMessagesSendsCursor(t *testing.T) {
	f := newFixture(t, nil)
	channelID := uuid.New()
	cursor := chat.Cursor{CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC), ID: uuid.New()}

	f.mux.HandleFunc("GET /api/v1/channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, channelID.String(), r.PathValue("id"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, cursor.CreatedAt.Format(time.RFC3339Nano), q.Get("before"))
		assert.Equal(t, cursor.ID.String(), q.Get("before_id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": []domain.Message{{ID: uuid.New(), ChannelID: channelID, Content: "newest"}, {ID: uuid.New(), ChannelID: channelID, Content: "older"}},
			"has_more": true,
		})
	})

	msgs, err := f.client.QueryMessages(context.Background(), channelID, 20, &cursor)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "newest", msgs[0].Content)
}

func TestGetRetriesServerErrors(t *testing.T) {
	f := newFixture(t, nil)
	var calls atomic.Int32
	f.mux.HandleFunc("GET /api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeAPIError(w, http.StatusServiceUnavailable, "UNAVAILABLE")
			return
		}
		writeJSON(w, http.StatusOK, domain.User{ID: f.self, Username: "ana"})
	})

	u, err := f.client.LookupUser(context.Background(), f.self)
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	f := newFixture(t, nil)
	var calls atomic.Int32
	f.mux.HandleFunc("GET /api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND")
	})

	u, err := f.client.LookupUser(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeleteChannelMapsErrors(t *testing.T) {
	f := newFixture(t, nil)
	forbidden, missing := uuid.New(), uuid.New()
	f.mux.HandleFunc("DELETE /api/v1/channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case forbidden.String():
			writeAPIError(w, http.StatusForbidden, "FORBIDDEN")
		case missing.String():
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	ctx := context.Background()
	assert.ErrorIs(t, f.client.DeleteChannel(ctx, forbidden, f.self), chat.ErrNotAuthorized)
	assert.ErrorIs(t, f.client.DeleteChannel(ctx, missing, f.self), chat.ErrChannelNotFound)
	assert.NoError(t, f.client.DeleteChannel(ctx, uuid.New(), f.self))
}

func TestInsertMessageSendsClientID(t *testing.T) {
	f := newFixture(t, nil)
	channelID := uuid.New()
	f.mux.HandleFunc("POST /api/v1/channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var in service.SendMessageInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(w, http.StatusCreated, domain.Message{ID: uuid.New(), ChannelID: channelID, SenderID: f.self, Content: in.Content, ClientID: in.ClientID})
	})

	msg, err := f.client.InsertMessage(context.Background(), channelID, f.self, "hello", "tmp-1")
	require.NoError(t, err)
	assert.Equal(t, "tmp-1", msg.ClientID)
	assert.Equal(t, "hello", msg.Content)
}

func TestSubscribeInsertsDeliversPushes(t *testing.T) {
	f := newFixture(t, nil)
	channelID := uuid.New()
	received := make(chan domain.Message, 1)

	sub, err := f.client.SubscribeInserts(context.Background(), channelID, func(m domain.Message) { received <- m })
	require.NoError(t, err)

	ws.NewHubNotifier(f.hub).NotifyNewMessage(&domain.Message{ID: uuid.New(), ChannelID: channelID, Content: "pushed", ClientID: "tmp-x"})

	select {
	case m := <-received:
		assert.Equal(t, "pushed", m.Content)
		assert.Equal(t, "tmp-x", m.ClientID)
	case <-time.After(5 * time.Second):
		t.Fatal("push not delivered")
	}

	require.NoError(t, sub.Close())
	<-sub.Done()
	assert.NoError(t, sub.Err())
}

func TestSubscribeInsertsEndsOnChannelDeleted(t *testing.T) {
	f := newFixture(t, nil)
	channelID := uuid.New()

	sub, err := f.client.SubscribeInserts(context.Background(), channelID, func(domain.Message) {})
	require.NoError(t, err)

	ws.NewHubNotifier(f.hub).NotifyChannelDeleted(channelID)

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end")
	}
	assert.ErrorIs(t, sub.Err(), chat.ErrChannelDeleted)
}

func TestSubscribeInsertsRejected(t *testing.T) {
	f := newFixture(t, authorizerFunc(func(context.Context, uuid.UUID, uuid.UUID) error {
		return service.ErrNotChannelMember
	}))

	_, err := f.client.SubscribeInserts(context.Background(), uuid.New(), func(domain.Message) {})
	assert.ErrorIs(t, err, chat.ErrChannelNotFound)
}

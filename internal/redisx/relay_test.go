package redisx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulsechat/internal/domain"
)

type recordingNotifier struct {
	messages []*domain.Message
	deleted  []uuid.UUID
}

func (n *recordingNotifier) NotifyNewMessage(msg *domain.Message) { n.messages = append(n.messages, msg) }

func (n *recordingNotifier) NotifyChannelDeleted(id uuid.UUID) { n.deleted = append(n.deleted, id) }

func TestRelayHandlePayload(t *testing.T) {
	local := &recordingNotifier{}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })
	rl := NewRelay(&Client{R: rdb}, "test", local)

	msg := &domain.Message{ID: uuid.New(), ChannelID: uuid.New(), Content: "hi", CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(relayEnvelope{Kind: relayKindMessage, ChannelID: msg.ChannelID, Message: msg})
	require.NoError(t, err)
	rl.handlePayload(data)

	chID := uuid.New()
	data, err = json.Marshal(relayEnvelope{Kind: relayKindChannelDeleted, ChannelID: chID})
	require.NoError(t, err)
	rl.handlePayload(data)

	rl.handlePayload([]byte("{not json"))
	rl.handlePayload([]byte(`{"kind":"message.new"}`))

	require.Len(t, local.messages, 1)
	assert.Equal(t, msg.ID, local.messages[0].ID)
	assert.Equal(t, "hi", local.messages[0].Content)
	assert.Equal(t, []uuid.UUID{chID}, local.deleted)
}

func TestRelayFallsBackToLocalDeliveryWhenPublishFails(t *testing.T) {
	local := &recordingNotifier{}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	rl := NewRelay(&Client{R: rdb}, "test", local)

	chID := uuid.New()
	rl.NotifyChannelDeleted(chID)

	assert.Equal(t, []uuid.UUID{chID}, local.deleted)
}

func TestLimitHTTPRequiresKey(t *testing.T) {
	l := NewLimiter(&Client{R: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})})
	called := false
	h := l.LimitHTTP(1, time.Minute, func(*http.Request) string { return "" }, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestLimitHTTPFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewLimiter(&Client{R: rdb})
	called := false
	h := l.LimitHTTP(1, time.Minute, func(*http.Request) string { return "u1" }, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

package chat_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsechat/internal/chat"
	"github.com/vedran77/pulsechat/internal/chat/memory"
	"github.com/vedran77/pulsechat/internal/domain"
)

type fakePlatform struct {
	mu       sync.Mutex
	perm     chat.Permission
	requests int
	plays    int
}

func (p *fakePlatform) Permission() chat.Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perm
}

func (p *fakePlatform) RequestPermission(context.Context) (chat.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	return p.perm, nil
}

func (p *fakePlatform) PlaySound(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *fakePlatform) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

func newSession(t *testing.T, store *memory.Store, user domain.User, platform chat.Platform) *chat.Session {
	t.Helper()
	s := chat.NewSession(store.For(user.ID), user.ID, chat.SessionConfig{
		PageSize: 20,
		Platform: platform,
		BackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(5 * time.Millisecond)
		},
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	return s
}

// seedChannel creates a public channel with n messages "m01".."mNN" from author.
func seedChannel(t *testing.T, store *memory.Store, author domain.User, name string, n int) *domain.Channel {
	t.Helper()
	ctx := context.Background()
	b := store.For(author.ID)
	ch, err := b.InsertChannel(ctx, name, author.ID, false)
	require.NoError(t, err)
	require.NoError(t, b.InsertMembership(ctx, ch.ID, author.ID))
	for i := 1; i <= n; i++ {
		_, err := b.InsertMessage(ctx, ch.ID, author.ID, fmt.Sprintf("m%02d", i), "")
		require.NoError(t, err)
	}
	return ch
}

func contents(entries []chat.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message.Content)
	}
	return out
}

func seq(from, to int) []string {
	out := []string{}
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("m%02d", i))
	}
	return out
}

func keys(entries []chat.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

func countContent(entries []chat.Entry, content string) int {
	n := 0
	for _, e := range entries {
		if e.Message.Content == content {
			n++
		}
	}
	return n
}

func hasDuplicateKeys(entries []chat.Entry) bool {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Key]; ok {
			return true
		}
		seen[e.Key] = struct{}{}
	}
	return false
}

func isSortedByTime(entries []chat.Entry) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i].Message.CreatedAt.Before(entries[i-1].Message.CreatedAt) {
			return false
		}
	}
	return true
}

// blockingQuery arms a BeforeQuery hook for channelID that signals entry and
// waits for release.
type blockingQuery struct {
	channelID uuid.UUID
	entered   chan struct{}
	release   chan struct{}
	mu        sync.Mutex
	calls     int
}

func blockQueries(store *memory.Store, channelID uuid.UUID) *blockingQuery {
	bq := &blockingQuery{
		channelID: channelID,
		entered:   make(chan struct{}, 8),
		release:   make(chan struct{}),
	}
	store.SetHooks(memory.Hooks{
		BeforeQuery: func(ctx context.Context, id uuid.UUID) error {
			if id != bq.channelID {
				return nil
			}
			bq.mu.Lock()
			bq.calls++
			bq.mu.Unlock()
			bq.entered <- struct{}{}
			<-bq.release
			return nil
		},
	})
	return bq
}

func (bq *blockingQuery) Calls() int {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	return bq.calls
}

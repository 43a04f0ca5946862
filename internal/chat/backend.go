// Package chat keeps one consistent, ordered, duplicate-free view of a
// conversation while history pages, live pushes and local sends arrive
// concurrently.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// Cursor is the exclusive upper bound of a backward page fetch. A zero ID
// compares on CreatedAt alone.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Subscription is a live stream of inserts for one channel.
type Subscription interface {
	// Close unsubscribes. It is safe to call more than once.
	Close() error
	// Done is closed when the stream stops, whether by Close or by a drop.
	Done() <-chan struct{}
	// Err reports why the stream stopped. It is nil after Close.
	Err() error
}

// Backend is the persistence and pub/sub service the messaging core runs on.
type Backend interface {
	// InsertChannel returns ErrDuplicateChannel when the name is taken.
	InsertChannel(ctx context.Context, name string, creatorID uuid.UUID, isPrivate bool) (*domain.Channel, error)
	// InsertMembership is idempotent.
	InsertMembership(ctx context.Context, channelID, userID uuid.UUID) error
	// FindChannel returns nil, nil when no visible channel matches.
	FindChannel(ctx context.Context, name string, isPrivate bool) (*domain.Channel, error)
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error)
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	// QueryMessages returns at most limit messages older than before, newest first.
	QueryMessages(ctx context.Context, channelID uuid.UUID, limit int, before *Cursor) ([]domain.Message, error)
	// InsertMessage is idempotent on (senderID, clientID) when clientID is set.
	InsertMessage(ctx context.Context, channelID, senderID uuid.UUID, content, clientID string) (*domain.Message, error)
	SubscribeInserts(ctx context.Context, channelID uuid.UUID, onEvent func(domain.Message)) (Subscription, error)
	// DeleteChannel returns ErrNotAuthorized unless requesterID created the channel.
	DeleteChannel(ctx context.Context, channelID, requesterID uuid.UUID) error
	// LookupUser returns nil, nil for unknown users.
	LookupUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

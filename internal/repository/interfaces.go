package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// ErrDuplicate is returned by Create methods when a unique constraint rejects the row.
var ErrDuplicate = errors.New("duplicate key")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
	GetByName(ctx context.Context, name string) (*domain.Channel, error)
	ListVisible(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, member *domain.ChannelMember) error
	GetMember(ctx context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error)
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error)
}

// MessageCursor is the exclusive upper bound of a backward page.
// A zero ID compares by timestamp only.
type MessageCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	GetByClientID(ctx context.Context, senderID uuid.UUID, clientID string) (*domain.Message, error)
	// ListByChannel returns up to limit messages, newest first.
	ListByChannel(ctx context.Context, channelID uuid.UUID, before *MessageCursor, limit int) ([]domain.Message, error)
}

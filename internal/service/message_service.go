package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/events"
	"github.com/vedran77/pulsechat/internal/observability"
	"github.com/vedran77/pulsechat/internal/repository"
)

var (
	ErrEmptyContent = errors.New("message content is required")
	ErrSendInFlight = errors.New("a send with this client id is still in progress")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	idempotencyTTL  = 10 * time.Minute
)

// IdempotencyStore claims client send keys ahead of the database insert.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

var tracer = observability.Tracer("github.com/vedran77/pulsechat/internal/service")

type MessageService struct {
	messageRepo repository.MessageRepository
	channels    *ChannelService
	notifier    Notifier
	publisher   EventPublisher
	idem        IdempotencyStore
}

func NewMessageService(messageRepo repository.MessageRepository, channels *ChannelService) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		channels:    channels,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPublisher sets the domain event publisher (optional dependency).
func (s *MessageService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetIdempotencyStore enables the fast-path duplicate check (optional dependency).
func (s *MessageService) SetIdempotencyStore(store IdempotencyStore) {
	s.idem = store
}

type SendMessageInput struct {
	Content  string `json:"content"`
	ClientID string `json:"client_id,omitempty"`
}

type MessageListResponse struct {
	// Messages are newest first.
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// Send persists a message. A repeated ClientID from the same sender returns
// the message stored by the first attempt and broadcasts nothing.
func (s *MessageService) Send(ctx context.Context, userID, channelID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send")
	defer span.End()

	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrEmptyContent
	}
	if err := s.channels.CanAccess(ctx, userID, channelID); err != nil {
		return nil, err
	}

	idemKey := ""
	if input.ClientID != "" {
		idemKey = userID.String() + ":" + input.ClientID
	}

	if idemKey != "" && s.idem != nil {
		fresh, err := s.idem.Claim(ctx, idemKey)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency store unavailable, relying on database")
		} else if !fresh {
			return s.replay(ctx, userID, input.ClientID)
		}
	}

	msg := &domain.Message{
		ID:        uuid.New(),
		ChannelID: channelID,
		SenderID:  userID,
		Content:   input.Content,
		ClientID:  input.ClientID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) && input.ClientID != "" {
			return s.replay(ctx, userID, input.ClientID)
		}
		if idemKey != "" && s.idem != nil {
			if rerr := s.idem.Release(ctx, idemKey); rerr != nil {
				log.Warn().Err(rerr).Msg("release idempotency key")
			}
		}
		return nil, fmt.Errorf("creating message: %w", err)
	}
	observability.IncMessagesCreated()

	// Dohvati sa sender info
	full, err := s.messageRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if full == nil {
		full = msg
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(full)
	}
	if s.publisher != nil {
		evt := events.MessageCreated{
			Type:      events.RoutingMessageCreated,
			MessageID: full.ID,
			ChannelID: full.ChannelID,
			SenderID:  full.SenderID,
			CreatedAt: full.CreatedAt,
		}
		if err := s.publisher.Publish(ctx, events.RoutingMessageCreated, evt); err != nil {
			log.Warn().Err(err).Stringer("message_id", full.ID).Msg("publish message event")
		}
	}

	return full, nil
}

func (s *MessageService) replay(ctx context.Context, userID uuid.UUID, clientID string) (*domain.Message, error) {
	existing, err := s.messageRepo.GetByClientID(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSendInFlight
	}
	log.Debug().Str("client_id", clientID).Stringer("message_id", existing.ID).Msg("replayed idempotent send")
	return existing, nil
}

// List returns one page, newest first, strictly older than before.
func (s *MessageService) List(ctx context.Context, userID, channelID uuid.UUID, before *repository.MessageCursor, limit int) (*MessageListResponse, error) {
	ctx, span := tracer.Start(ctx, "MessageService.List")
	defer span.End()

	if err := s.channels.CanAccess(ctx, userID, channelID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	// Dohvati limit+1 da znamo ima li jos
	messages, err := s.messageRepo.ListByChannel(ctx, channelID, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

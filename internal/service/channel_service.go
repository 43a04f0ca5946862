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
	"github.com/vedran77/pulsechat/internal/repository"
)

var (
	ErrChannelNotFound  = errors.New("channel not found")
	ErrChannelNameTaken = errors.New("channel name already exists")
	ErrNotChannelAdmin  = errors.New("only the channel creator can perform this action")
	ErrNotChannelMember = errors.New("user is not a member of this channel")
	ErrReservedName     = errors.New("channel names starting with dm- are reserved for direct messages")
	ErrInvalidDMName    = errors.New("direct message name must be canonical and include the creator")
)

// Notifier broadcasts real-time events to connected clients.
type Notifier interface {
	NotifyNewMessage(msg *domain.Message)
	NotifyChannelDeleted(channelID uuid.UUID)
}

// EventPublisher ships domain events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type ChannelService struct {
	channelRepo repository.ChannelRepository
	userRepo    repository.UserRepository
	notifier    Notifier
	publisher   EventPublisher
}

func NewChannelService(channelRepo repository.ChannelRepository, userRepo repository.UserRepository) *ChannelService {
	return &ChannelService{
		channelRepo: channelRepo,
		userRepo:    userRepo,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ChannelService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPublisher sets the domain event publisher (optional dependency).
func (s *ChannelService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

type CreateChannelInput struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// Create inserts the channel and makes the creator its admin member.
// DM-prefixed names must be private and canonical for a pair that includes the creator.
func (s *ChannelService) Create(ctx context.Context, userID uuid.UUID, input CreateChannelInput) (*domain.Channel, error) {
	name := strings.TrimSpace(input.Name)
	if strings.HasPrefix(name, domain.DMPrefix) {
		if !input.IsPrivate {
			return nil, ErrReservedName
		}
		a, b, ok := domain.DMParticipants(name)
		if !ok || (a != userID && b != userID) {
			return nil, ErrInvalidDMName
		}
	}

	ch := &domain.Channel{
		ID:        uuid.New(),
		Name:      name,
		IsPrivate: input.IsPrivate,
		CreatedBy: userID,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.channelRepo.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrChannelNameTaken
		}
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	cm := &domain.ChannelMember{
		ChannelID: ch.ID,
		UserID:    userID,
		Role:      domain.RoleAdmin,
		JoinedAt:  time.Now().UTC(),
	}
	if err := s.channelRepo.AddMember(ctx, cm); err != nil {
		return nil, fmt.Errorf("adding creator as member: %w", err)
	}

	s.publish(ctx, events.RoutingChannelCreated, ch, userID)
	return ch, nil
}

func (s *ChannelService) GetByID(ctx context.Context, userID, channelID uuid.UUID) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	if err := s.checkVisible(ctx, ch, userID); err != nil {
		return nil, err
	}
	return ch, nil
}

// Lookup finds a channel by exact name and privacy. Private channels the
// caller does not belong to are reported as not found.
func (s *ChannelService) Lookup(ctx context.Context, userID uuid.UUID, name string, isPrivate bool) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.IsPrivate != isPrivate {
		return nil, ErrChannelNotFound
	}
	if err := s.checkVisible(ctx, ch, userID); err != nil {
		return nil, ErrChannelNotFound
	}
	return ch, nil
}

func (s *ChannelService) List(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	channels, err := s.channelRepo.ListVisible(ctx, userID)
	if err != nil {
		return nil, err
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return channels, nil
}

// Delete removes a channel and its messages. Only the creator may delete.
func (s *ChannelService) Delete(ctx context.Context, userID, channelID uuid.UUID) error {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}
	if ch.CreatedBy != userID {
		return ErrNotChannelAdmin
	}

	if err := s.channelRepo.Delete(ctx, channelID); err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyChannelDeleted(channelID)
	}
	s.publish(ctx, events.RoutingChannelDeleted, ch, userID)
	return nil
}

// AddMember is idempotent. Anyone may join a public channel; private
// channels accept new members only from their admins.
func (s *ChannelService) AddMember(ctx context.Context, requesterID, channelID, userID uuid.UUID) error {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}

	if ch.IsPrivate {
		cm, err := s.channelRepo.GetMember(ctx, channelID, requesterID)
		if err != nil {
			return err
		}
		if cm == nil || cm.Role != domain.RoleAdmin {
			return ErrNotChannelAdmin
		}
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	member := &domain.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      domain.RoleMember,
		JoinedAt:  time.Now().UTC(),
	}
	return s.channelRepo.AddMember(ctx, member)
}

func (s *ChannelService) ListMembers(ctx context.Context, userID, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	if _, err := s.GetByID(ctx, userID, channelID); err != nil {
		return nil, err
	}

	members, err := s.channelRepo.ListMembers(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []domain.ChannelMember{}
	}
	return members, nil
}

// CanAccess reports whether userID may read and post in channelID.
func (s *ChannelService) CanAccess(ctx context.Context, userID, channelID uuid.UUID) error {
	_, err := s.GetByID(ctx, userID, channelID)
	return err
}

func (s *ChannelService) checkVisible(ctx context.Context, ch *domain.Channel, userID uuid.UUID) error {
	if !ch.IsPrivate {
		return nil
	}
	// DM participants see the channel before their membership rows exist.
	if a, b, ok := domain.DMParticipants(ch.Name); ok && (a == userID || b == userID) {
		return nil
	}
	cm, err := s.channelRepo.GetMember(ctx, ch.ID, userID)
	if err != nil {
		return err
	}
	if cm == nil {
		return ErrNotChannelMember
	}
	return nil
}

func (s *ChannelService) publish(ctx context.Context, routingKey string, ch *domain.Channel, actorID uuid.UUID) {
	if s.publisher == nil {
		return
	}
	evt := events.ChannelChanged{
		Type:      routingKey,
		ChannelID: ch.ID,
		Name:      ch.Name,
		IsPrivate: ch.IsPrivate,
		ActorID:   actorID,
		At:        time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, routingKey, evt); err != nil {
		log.Warn().Err(err).Str("routing_key", routingKey).Stringer("channel_id", ch.ID).Msg("publish channel event")
	}
}

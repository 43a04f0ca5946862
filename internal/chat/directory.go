package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
)

// Directory resolves and creates channels and keeps the session's channel
// list.
type Directory struct {
	backend  Backend
	resolver *Resolver
	logger   zerolog.Logger

	mu        sync.RWMutex
	channels  []domain.Channel
	observers []func([]domain.Channel)
}

func NewDirectory(backend Backend, resolver *Resolver) *Directory {
	return &Directory{
		backend:  backend,
		resolver: resolver,
		logger:   observability.Component("directory"),
	}
}

// CanonicalDMName is the only legal name of the DM channel between a and b.
func CanonicalDMName(a, b uuid.UUID) string {
	return domain.DMName(a.String(), b.String())
}

// NormalizeChannelName lowercases name and joins whitespace runs with "-".
func NormalizeChannelName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// ResolveOrPrepareDM returns the existing DM channel between selfID and
// otherID, or a pending DM when none exists yet. Nothing is created.
func (d *Directory) ResolveOrPrepareDM(ctx context.Context, selfID, otherID uuid.UUID) (*Conversation, error) {
	if selfID == otherID {
		return nil, ErrCannotDMSelf
	}
	name := CanonicalDMName(selfID, otherID)

	ch, err := d.backend.FindChannel(ctx, name, true)
	if err != nil {
		return nil, fmt.Errorf("find dm %s: %w", name, err)
	}
	if ch == nil {
		first, second := selfID, otherID
		if first.String() > second.String() {
			first, second = second, first
		}
		return &Conversation{
			Pending: &PendingDM{Name: name, Participants: [2]uuid.UUID{first, second}},
			Members: []Profile{d.resolver.Profile(ctx, first), d.resolver.Profile(ctx, second)},
		}, nil
	}

	members, err := d.Members(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	d.remember(*ch)
	return &Conversation{Channel: ch, Members: members}, nil
}

// Members lists a channel's members with their display data.
func (d *Directory) Members(ctx context.Context, channelID uuid.UUID) ([]Profile, error) {
	rows, err := d.backend.ListMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	profiles := make([]Profile, 0, len(rows))
	for _, m := range rows {
		d.resolver.RememberMember(m)
		profiles = append(profiles, d.resolver.Profile(ctx, m.UserID))
	}
	return profiles, nil
}

// CreatePublicChannel creates an open channel and makes the creator a member.
// A taken name is reported as ErrDuplicateChannel, never renamed.
func (d *Directory) CreatePublicChannel(ctx context.Context, name string, creatorID uuid.UUID) (*domain.Channel, error) {
	norm := NormalizeChannelName(name)
	if norm == "" {
		return nil, ErrInvalidName
	}
	if strings.HasPrefix(norm, domain.DMPrefix) {
		return nil, ErrReservedName
	}

	ch, err := d.backend.InsertChannel(ctx, norm, creatorID, false)
	if err != nil {
		return nil, err
	}
	if err := d.backend.InsertMembership(ctx, ch.ID, creatorID); err != nil {
		return nil, fmt.Errorf("add creator to %s: %w", norm, err)
	}

	d.remember(*ch)
	d.logger.Info().Str("channel", norm).Msg("channel created")
	return ch, nil
}

// JoinPublicChannel finds an open channel by name and adds userID to it.
func (d *Directory) JoinPublicChannel(ctx context.Context, name string, userID uuid.UUID) (*domain.Channel, error) {
	norm := NormalizeChannelName(name)
	ch, err := d.backend.FindChannel(ctx, norm, false)
	if err != nil {
		return nil, fmt.Errorf("find channel %s: %w", norm, err)
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	if err := d.backend.InsertMembership(ctx, ch.ID, userID); err != nil {
		return nil, fmt.Errorf("join %s: %w", norm, err)
	}
	d.remember(*ch)
	return ch, nil
}

// CreateDM creates the channel for a pending DM with both participants as
// members. If the peer created it first, that channel is adopted and created
// is false; an adopted channel may already hold messages.
func (d *Directory) CreateDM(ctx context.Context, pending *PendingDM, creatorID uuid.UUID) (ch *domain.Channel, created bool, err error) {
	ch, err = d.backend.InsertChannel(ctx, pending.Name, creatorID, true)
	if errors.Is(err, ErrDuplicateChannel) {
		existing, ferr := d.backend.FindChannel(ctx, pending.Name, true)
		if ferr != nil {
			return nil, false, fmt.Errorf("find dm %s: %w", pending.Name, ferr)
		}
		if existing == nil {
			return nil, false, err
		}
		d.logger.Debug().Str("channel", pending.Name).Msg("adopted dm created by peer")
		d.remember(*existing)
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	for _, userID := range pending.Participants {
		if err := d.backend.InsertMembership(ctx, ch.ID, userID); err != nil {
			return nil, false, fmt.Errorf("add %s to dm: %w", userID, err)
		}
	}

	d.remember(*ch)
	return ch, true, nil
}

// DeleteChannel deletes a channel and its messages. Only the creator may.
func (d *Directory) DeleteChannel(ctx context.Context, channelID, requesterID uuid.UUID) error {
	if ch, ok := d.Channel(channelID); ok && ch.CreatedBy != requesterID {
		return ErrNotAuthorized
	}
	if err := d.backend.DeleteChannel(ctx, channelID, requesterID); err != nil {
		return err
	}
	d.Forget(channelID)
	return nil
}

// Refresh reloads the channel list from the backend.
func (d *Directory) Refresh(ctx context.Context) error {
	channels, err := d.backend.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	d.mu.Lock()
	d.channels = append([]domain.Channel(nil), channels...)
	d.mu.Unlock()
	d.notify()
	return nil
}

// Channels returns the session's channel list.
func (d *Directory) Channels() []domain.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Channel(nil), d.channels...)
}

func (d *Directory) Channel(id uuid.UUID) (domain.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return domain.Channel{}, false
}

// ChannelByName finds a listed channel by its exact name.
func (d *Directory) ChannelByName(name string) (domain.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return domain.Channel{}, false
}

// OnChange registers fn to receive the channel list after every change.
func (d *Directory) OnChange(fn func([]domain.Channel)) {
	d.mu.Lock()
	d.observers = append(d.observers, fn)
	d.mu.Unlock()
}

// Forget drops a channel from the list, e.g. after it was deleted elsewhere.
func (d *Directory) Forget(channelID uuid.UUID) {
	d.mu.Lock()
	removed := false
	for i, ch := range d.channels {
		if ch.ID == channelID {
			d.channels = append(d.channels[:i], d.channels[i+1:]...)
			removed = true
			break
		}
	}
	d.mu.Unlock()
	if removed {
		d.notify()
	}
}

func (d *Directory) remember(ch domain.Channel) {
	d.mu.Lock()
	for i := range d.channels {
		if d.channels[i].ID == ch.ID {
			d.channels[i] = ch
			d.mu.Unlock()
			return
		}
	}
	d.channels = append(d.channels, ch)
	d.mu.Unlock()
	d.notify()
}

func (d *Directory) notify() {
	d.mu.RLock()
	observers := slices.Clone(d.observers)
	channels := slices.Clone(d.channels)
	d.mu.RUnlock()
	for _, fn := range observers {
		fn(channels)
	}
}

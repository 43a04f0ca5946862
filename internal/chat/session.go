package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
)

// SessionConfig configures a Session. Zero values pick defaults.
type SessionConfig struct {
	PageSize int
	Platform Platform
	// BackOff overrides the resubscribe policy.
	BackOff func() backoff.BackOff
}

// Session is the active-conversation controller for one user. It owns at
// most one ChannelState and its live subscription at a time.
type Session struct {
	selfID    uuid.UUID
	Resolver  *Resolver
	Directory *Directory
	History   *History
	Outbox    *Outbox
	Bridge    *Bridge
	Gate      *Gate
	logger    zerolog.Logger

	mu         sync.Mutex
	active     *ChannelState
	attachment *Attachment
	listeners  []func(Change)
}

func NewSession(backend Backend, selfID uuid.UUID, cfg SessionConfig) *Session {
	platform := cfg.Platform
	if platform == nil {
		platform = SilentPlatform{}
	}
	resolver := NewResolver(backend)
	directory := NewDirectory(backend, resolver)
	history := NewHistory(backend, resolver, cfg.PageSize)
	gate := NewGate(platform)
	bridge := NewBridge(backend, history, resolver, gate, selfID)
	if cfg.BackOff != nil {
		bridge.SetBackOff(cfg.BackOff)
	}

	return &Session{
		selfID:    selfID,
		Resolver:  resolver,
		Directory: directory,
		History:   history,
		Outbox:    NewOutbox(backend, directory, resolver),
		Bridge:    bridge,
		Gate:      gate,
		logger:    observability.Component("session").With().Stringer("user_id", selfID).Logger(),
	}
}

func (s *Session) SelfID() uuid.UUID { return s.selfID }

// Start primes notification permission and loads the channel list.
func (s *Session) Start(ctx context.Context) error {
	s.Gate.Prime(ctx)
	return s.Directory.Refresh(ctx)
}

// OnChange registers fn for changes to whichever conversation is active.
func (s *Session) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) dispatch(st *ChannelState) func(Change) {
	return func(c Change) {
		s.mu.Lock()
		if s.active != st {
			s.mu.Unlock()
			return
		}
		listeners := slices.Clone(s.listeners)
		s.mu.Unlock()

		if c.Kind == ChangeClosed && errors.Is(c.Err, ErrChannelDeleted) {
			s.Directory.Forget(c.ChannelID)
		}
		for _, fn := range listeners {
			fn(c)
		}
	}
}

// Active returns the current conversation state, or nil.
func (s *Session) Active() *ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Open makes ch the active conversation: it subscribes to inserts, then
// loads the newest page.
func (s *Session) Open(ctx context.Context, ch *domain.Channel) (*ChannelState, error) {
	members, err := s.Directory.Members(ctx, ch.ID)
	if err != nil {
		s.logger.Debug().Err(err).Stringer("channel_id", ch.ID).Msg("load members")
	}
	return s.activate(ctx, Conversation{Channel: ch, Members: members})
}

// OpenDM makes the DM with otherID active, pending if it does not exist yet.
func (s *Session) OpenDM(ctx context.Context, otherID uuid.UUID) (*ChannelState, error) {
	conv, err := s.Directory.ResolveOrPrepareDM(ctx, s.selfID, otherID)
	if err != nil {
		return nil, err
	}
	return s.activate(ctx, *conv)
}

func (s *Session) activate(ctx context.Context, conv Conversation) (*ChannelState, error) {
	st := &ChannelState{conv: conv}
	st.listener = s.dispatch(st)

	s.mu.Lock()
	prev, prevAttachment := s.active, s.attachment
	s.active, s.attachment = st, nil
	s.mu.Unlock()

	if prev != nil {
		prev.Close(nil)
	}
	if prevAttachment != nil {
		prevAttachment.Close()
	}

	if conv.Channel == nil {
		return st, nil
	}
	if err := s.attach(ctx, st); err != nil {
		// history still works without live updates
		s.logger.Warn().Err(err).Str("channel", conv.Channel.Name).Msg("subscribe")
	}
	if _, err := s.History.LoadInitial(ctx, st); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Session) attach(ctx context.Context, st *ChannelState) error {
	a, err := s.Bridge.Attach(ctx, st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.active != st || s.attachment != nil {
		s.mu.Unlock()
		a.Close()
		return nil
	}
	s.attachment = a
	s.mu.Unlock()
	return nil
}

// LoadOlder fetches the page before the oldest loaded message.
func (s *Session) LoadOlder(ctx context.Context) (PageResult, error) {
	st := s.Active()
	if st == nil {
		return PageResult{}, ErrNoActiveChannel
	}
	return s.History.LoadOlder(ctx, st)
}

// Send posts content to the active conversation. Sending into a pending DM
// creates (or adopts) the channel, starts its subscription and then loads
// whatever the peer posted before the subscription was live.
func (s *Session) Send(ctx context.Context, content string) (*domain.Message, error) {
	st := s.Active()
	if st == nil {
		return nil, ErrNoActiveChannel
	}
	wasPending := st.Conversation().Channel == nil

	msg, err := s.Outbox.Send(ctx, st, s.selfID, content)
	if wasPending {
		if _, ok := st.ChannelID(); ok && st.Active() {
			s.settleDM(ctx, st)
		}
	}
	return msg, err
}

func (s *Session) settleDM(ctx context.Context, st *ChannelState) {
	if err := s.attach(ctx, st); err != nil {
		s.logger.Warn().Err(err).Msg("subscribe to new dm")
	}
	if st.needsHistory() {
		if _, err := s.History.LoadInitial(ctx, st); err != nil {
			s.logger.Warn().Err(err).Msg("load adopted dm")
		}
	}
	if _, err := s.History.CatchUp(ctx, st); err != nil {
		s.logger.Warn().Err(err).Msg("catch up new dm")
	}
}

// CreateChannel creates a public channel and opens it.
func (s *Session) CreateChannel(ctx context.Context, name string) (*ChannelState, error) {
	ch, err := s.Directory.CreatePublicChannel(ctx, name, s.selfID)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, ch)
}

// Join joins a public channel by name and opens it.
func (s *Session) Join(ctx context.Context, name string) (*ChannelState, error) {
	ch, err := s.Directory.JoinPublicChannel(ctx, name, s.selfID)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, ch)
}

// DeleteActive deletes the active channel and closes the conversation.
func (s *Session) DeleteActive(ctx context.Context) error {
	st := s.Active()
	if st == nil {
		return ErrNoActiveChannel
	}
	channelID, ok := st.ChannelID()
	if !ok {
		return fmt.Errorf("delete %s: %w", st.Conversation().Name(), ErrChannelNotFound)
	}
	if err := s.Directory.DeleteChannel(ctx, channelID, s.selfID); err != nil {
		return err
	}
	s.deactivate(st)
	return nil
}

// Close ends the active conversation.
func (s *Session) Close() {
	if st := s.Active(); st != nil {
		s.deactivate(st)
	}
}

func (s *Session) deactivate(st *ChannelState) {
	s.mu.Lock()
	if s.active != st {
		s.mu.Unlock()
		return
	}
	a := s.attachment
	s.attachment = nil
	s.mu.Unlock()

	// listeners still see the close while st is active
	st.Close(nil)

	s.mu.Lock()
	if s.active == st {
		s.active = nil
	}
	s.mu.Unlock()
	if a != nil {
		a.Close()
	}
}

// SilentPlatform never plays anything and never asks for permission.
type SilentPlatform struct{}

func (SilentPlatform) Permission() Permission { return PermissionDenied }

func (SilentPlatform) RequestPermission(context.Context) (Permission, error) {
	return PermissionDenied, nil
}

func (SilentPlatform) PlaySound(context.Context) error { return nil }

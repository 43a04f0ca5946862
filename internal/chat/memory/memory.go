// Package memory is an in-process chat.Backend. Pushes are delivered
// synchronously from the inserting goroutine unless held.
package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/chat"
	"github.com/vedran77/pulsechat/internal/domain"
)

// ErrDropped ends subscriptions cut by DropSubscriptions.
var ErrDropped = errors.New("subscription dropped")

// Hooks let tests delay or fail backend calls. A non-nil error fails the call.
type Hooks struct {
	BeforeQuery         func(ctx context.Context, channelID uuid.UUID) error
	BeforeInsertMessage func(ctx context.Context, channelID uuid.UUID, content string) error
	BeforeInsertChannel func(ctx context.Context, name string) error
	BeforeSubscribe     func(ctx context.Context, channelID uuid.UUID) error
}

// Store holds the shared state behind every user's Backend.
type Store struct {
	mu        sync.Mutex
	users     map[uuid.UUID]domain.User
	channels  map[uuid.UUID]domain.Channel
	names     map[string]uuid.UUID
	members   map[uuid.UUID]map[uuid.UUID]domain.ChannelMember
	messages  map[uuid.UUID][]domain.Message
	clientIDs map[string]uuid.UUID
	subs      map[uuid.UUID]map[*subscription]struct{}

	now  func() time.Time
	last time.Time

	hooks Hooks
	hold  bool
	held  []delivery
}

type delivery struct {
	sub *subscription
	msg domain.Message
}

func NewStore() *Store {
	return &Store{
		users:     make(map[uuid.UUID]domain.User),
		channels:  make(map[uuid.UUID]domain.Channel),
		names:     make(map[string]uuid.UUID),
		members:   make(map[uuid.UUID]map[uuid.UUID]domain.ChannelMember),
		messages:  make(map[uuid.UUID][]domain.Message),
		clientIDs: make(map[string]uuid.UUID),
		subs:      make(map[uuid.UUID]map[*subscription]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source for new channels and messages.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// AddUser registers a user and returns it with an id assigned.
func (s *Store) AddUser(username, displayName string) domain.User {
	u := domain.User{
		ID:          uuid.New(),
		Email:       username + "@example.com",
		Username:    username,
		DisplayName: displayName,
	}
	s.mu.Lock()
	u.CreatedAt = s.tick()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	s.mu.Unlock()
	return u
}

// For returns the Backend seen by userID.
func (s *Store) For(userID uuid.UUID) *Backend {
	return &Backend{store: s, userID: userID}
}

// Hold queues pushes instead of delivering them until Flush.
func (s *Store) Hold() {
	s.mu.Lock()
	s.hold = true
	s.mu.Unlock()
}

// Flush delivers queued pushes and stops holding.
func (s *Store) Flush() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.hold = false
	s.mu.Unlock()
	deliver(held)
}

// DropSubscriptions ends every live subscription on channelID with ErrDropped.
func (s *Store) DropSubscriptions(channelID uuid.UUID) {
	s.mu.Lock()
	subs := s.takeSubs(channelID)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.end(ErrDropped)
	}
}

// Subscribers counts live subscriptions on channelID.
func (s *Store) Subscribers(channelID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[channelID])
}

// MessageCount counts stored messages in channelID.
func (s *Store) MessageCount(channelID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[channelID])
}

// tick returns a timestamp strictly after the previous one.
func (s *Store) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) takeSubs(channelID uuid.UUID) []*subscription {
	var out []*subscription
	for sub := range s.subs[channelID] {
		out = append(out, sub)
	}
	delete(s.subs, channelID)
	return out
}

func (s *Store) visible(ch domain.Channel, userID uuid.UUID) bool {
	if !ch.IsPrivate {
		return true
	}
	if _, ok := s.members[ch.ID][userID]; ok {
		return true
	}
	if a, b, ok := domain.DMParticipants(ch.Name); ok {
		return a == userID || b == userID
	}
	return false
}

func deliver(ds []delivery) {
	for _, d := range ds {
		d.sub.push(d.msg)
	}
}

// Backend is one user's view of a Store.
type Backend struct {
	store  *Store
	userID uuid.UUID
}

var _ chat.Backend = (*Backend)(nil)

func (b *Backend) InsertChannel(ctx context.Context, name string, creatorID uuid.UUID, isPrivate bool) (*domain.Channel, error) {
	s := b.store
	s.mu.Lock()
	hook := s.hooks.BeforeInsertChannel
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, name); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.names[name]; taken {
		return nil, chat.ErrDuplicateChannel
	}
	ch := domain.Channel{
		ID:        uuid.New(),
		Name:      name,
		IsPrivate: isPrivate,
		CreatedBy: creatorID,
		CreatedAt: s.tick(),
	}
	s.channels[ch.ID] = ch
	s.names[name] = ch.ID
	return &ch, nil
}

func (b *Backend) InsertMembership(ctx context.Context, channelID, userID uuid.UUID) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return chat.ErrChannelNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return errors.New("unknown user " + userID.String())
	}
	if s.members[channelID] == nil {
		s.members[channelID] = make(map[uuid.UUID]domain.ChannelMember)
	}
	if _, ok := s.members[channelID][userID]; ok {
		return nil
	}
	role := domain.RoleMember
	if ch.CreatedBy == userID {
		role = domain.RoleAdmin
	}
	s.members[channelID][userID] = domain.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  s.tick(),
	}
	return nil
}

func (b *Backend) FindChannel(ctx context.Context, name string, isPrivate bool) (*domain.Channel, error) {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	if !ok {
		return nil, nil
	}
	ch := s.channels[id]
	if ch.IsPrivate != isPrivate || !s.visible(ch, b.userID) {
		return nil, nil
	}
	return &ch, nil
}

func (b *Backend) ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok || !s.visible(ch, b.userID) {
		return nil, chat.ErrChannelNotFound
	}
	out := make([]domain.ChannelMember, 0, len(s.members[channelID]))
	for _, m := range s.members[channelID] {
		u := s.users[m.UserID]
		m.Username = u.Username
		m.DisplayName = u.DisplayName
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b domain.ChannelMember) int { return a.JoinedAt.Compare(b.JoinedAt) })
	return out, nil
}

func (b *Backend) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Channel
	for _, ch := range s.channels {
		if s.visible(ch, b.userID) {
			out = append(out, ch)
		}
	}
	slices.SortFunc(out, func(a, b domain.Channel) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (b *Backend) QueryMessages(ctx context.Context, channelID uuid.UUID, limit int, before *chat.Cursor) ([]domain.Message, error) {
	s := b.store
	s.mu.Lock()
	hook := s.hooks.BeforeQuery
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, channelID); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok || !s.visible(ch, b.userID) {
		return nil, chat.ErrChannelNotFound
	}

	all := s.messages[channelID]
	out := make([]domain.Message, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if before != nil && !olderThan(all[i], before) {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

// olderThan mirrors the server's (created_at, id) row comparison.
func olderThan(m domain.Message, c *chat.Cursor) bool {
	if !m.CreatedAt.Equal(c.CreatedAt) {
		return m.CreatedAt.Before(c.CreatedAt)
	}
	if c.ID == uuid.Nil {
		return false
	}
	return m.ID.String() < c.ID.String()
}

func (b *Backend) InsertMessage(ctx context.Context, channelID, senderID uuid.UUID, content, clientID string) (*domain.Message, error) {
	s := b.store
	s.mu.Lock()
	hook := s.hooks.BeforeInsertMessage
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, channelID, content); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(content) == "" {
		return nil, chat.ErrEmptyMessage
	}

	s.mu.Lock()
	ch, ok := s.channels[channelID]
	if !ok || !s.visible(ch, senderID) {
		s.mu.Unlock()
		return nil, chat.ErrChannelNotFound
	}
	idemKey := senderID.String() + ":" + clientID
	if clientID != "" {
		if id, seen := s.clientIDs[idemKey]; seen {
			msg := s.find(channelID, id)
			s.mu.Unlock()
			return msg, nil
		}
	}

	u := s.users[senderID]
	msg := domain.Message{
		ID:                uuid.New(),
		ChannelID:         channelID,
		SenderID:          senderID,
		Content:           content,
		ClientID:          clientID,
		CreatedAt:         s.tick(),
		SenderUsername:    u.Username,
		SenderDisplayName: u.DisplayName,
	}
	s.messages[channelID] = append(s.messages[channelID], msg)
	if clientID != "" {
		s.clientIDs[idemKey] = msg.ID
	}

	var ds []delivery
	for sub := range s.subs[channelID] {
		ds = append(ds, delivery{sub: sub, msg: msg})
	}
	if s.hold {
		s.held = append(s.held, ds...)
		ds = nil
	}
	s.mu.Unlock()

	deliver(ds)
	return &msg, nil
}

func (s *Store) find(channelID, id uuid.UUID) *domain.Message {
	for _, m := range s.messages[channelID] {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

func (b *Backend) SubscribeInserts(ctx context.Context, channelID uuid.UUID, onEvent func(domain.Message)) (chat.Subscription, error) {
	s := b.store
	s.mu.Lock()
	hook := s.hooks.BeforeSubscribe
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, channelID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok || !s.visible(ch, b.userID) {
		return nil, chat.ErrChannelNotFound
	}
	sub := &subscription{
		store:     s,
		channelID: channelID,
		onEvent:   onEvent,
		done:      make(chan struct{}),
	}
	if s.subs[channelID] == nil {
		s.subs[channelID] = make(map[*subscription]struct{})
	}
	s.subs[channelID][sub] = struct{}{}
	return sub, nil
}

func (b *Backend) DeleteChannel(ctx context.Context, channelID, requesterID uuid.UUID) error {
	s := b.store
	s.mu.Lock()
	ch, ok := s.channels[channelID]
	if !ok {
		s.mu.Unlock()
		return chat.ErrChannelNotFound
	}
	if ch.CreatedBy != requesterID {
		s.mu.Unlock()
		return chat.ErrNotAuthorized
	}
	delete(s.channels, channelID)
	delete(s.names, ch.Name)
	delete(s.members, channelID)
	delete(s.messages, channelID)
	subs := s.takeSubs(channelID)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.end(chat.ErrChannelDeleted)
	}
	return nil
}

func (b *Backend) LookupUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	pub := u.Public()
	return &pub, nil
}

type subscription struct {
	store     *Store
	channelID uuid.UUID
	onEvent   func(domain.Message)

	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

func (s *subscription) Close() error {
	s.store.mu.Lock()
	delete(s.store.subs[s.channelID], s)
	s.store.mu.Unlock()
	s.end(nil)
	return nil
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) push(msg domain.Message) {
	select {
	case <-s.done:
		return
	default:
	}
	s.onEvent(msg)
}

package chat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// PendingDM is a direct-message conversation whose channel row does not
// exist yet. It is created by the first send.
type PendingDM struct {
	Name         string
	Participants [2]uuid.UUID
}

// Conversation is either an existing channel or a pending DM.
type Conversation struct {
	Channel *domain.Channel
	Pending *PendingDM
	Members []Profile
}

func (c Conversation) Name() string {
	if c.Channel != nil {
		return c.Channel.Name
	}
	if c.Pending != nil {
		return c.Pending.Name
	}
	return ""
}

type ChangeKind int

const (
	// ChangeInserted carries entries added by a send or a push.
	ChangeInserted ChangeKind = iota + 1
	// ChangeHistory carries entries merged from a page fetch, oldest first.
	ChangeHistory
	// ChangeRemoved carries the key of a rolled back optimistic entry.
	ChangeRemoved
	// ChangeReconciled carries the committed entry that replaced Key.
	ChangeReconciled
	// ChangeClosed means the conversation ended, for example because the
	// channel was deleted.
	ChangeClosed
	// ChangeTrimmed carries committed entries dropped because a catch-up
	// could not reach them; LoadOlder brings them back in order.
	ChangeTrimmed
)

// Change describes one mutation of a ChannelState.
type Change struct {
	Kind      ChangeKind
	ChannelID uuid.UUID
	Key       string
	Entries   []Entry
	Err       error
}

// ChannelState is the per-conversation session state: the timeline plus the
// fetch bookkeeping. A state is active from creation until Close; results
// arriving after that are discarded.
type ChannelState struct {
	mu        sync.Mutex
	conv      Conversation
	timeline  Timeline
	fetching  bool
	loaded    bool
	exhausted bool
	closed    bool
	listener  func(Change)
}

// NewChannelState returns an active state for conv. listener may be nil.
func NewChannelState(conv Conversation, listener func(Change)) *ChannelState {
	return &ChannelState{conv: conv, listener: listener}
}

func (s *ChannelState) Conversation() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// ChannelID returns the channel id, or false while the conversation is a
// pending DM.
func (s *ChannelState) ChannelID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelIDLocked()
}

func (s *ChannelState) channelIDLocked() (uuid.UUID, bool) {
	if s.conv.Channel == nil {
		return uuid.Nil, false
	}
	return s.conv.Channel.ID, true
}

func (s *ChannelState) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Entries()
}

func (s *ChannelState) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Contains(key)
}

func (s *ChannelState) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

func (s *ChannelState) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close deactivates the state. err, if set, is reported to the listener.
func (s *ChannelState) Close(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	id, _ := s.channelIDLocked()
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeClosed, ChannelID: id, Err: err})
}

// promote turns a pending DM into its channel. Only a channel this state
// created is known to start empty; an adopted one still needs its history.
func (s *ChannelState) promote(ch *domain.Channel, created bool) {
	s.mu.Lock()
	s.conv.Channel = ch
	s.conv.Pending = nil
	s.loaded = created
	s.exhausted = created
	s.mu.Unlock()
}

// needsHistory reports whether no page has been loaded yet.
func (s *ChannelState) needsHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loaded
}

// insert adds a live entry unless the view already holds it or the state
// is closed.
func (s *ChannelState) insert(e Entry) bool {
	s.mu.Lock()
	if s.closed || !s.timeline.Insert(e) {
		s.mu.Unlock()
		return false
	}
	id, _ := s.channelIDLocked()
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeInserted, ChannelID: id, Entries: []Entry{e}})
	return true
}

// remove drops an entry even from a closed state so no optimistic entry
// outlives its failed send.
func (s *ChannelState) remove(key string) bool {
	s.mu.Lock()
	if !s.timeline.Remove(key) {
		s.mu.Unlock()
		return false
	}
	closed := s.closed
	id, _ := s.channelIDLocked()
	s.mu.Unlock()
	if !closed {
		s.emit(Change{Kind: ChangeRemoved, ChannelID: id, Key: key})
	}
	return true
}

// reconcile replaces the optimistic entry tempID with e. It is a no-op when
// the push already did the same.
func (s *ChannelState) reconcile(tempID string, e Entry) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	hadTemp := s.timeline.Contains(tempID)
	inserted := s.timeline.Replace(tempID, e)
	id, _ := s.channelIDLocked()
	s.mu.Unlock()

	switch {
	case hadTemp:
		s.emit(Change{Kind: ChangeReconciled, ChannelID: id, Key: tempID, Entries: []Entry{e}})
	case inserted:
		s.emit(Change{Kind: ChangeInserted, ChannelID: id, Entries: []Entry{e}})
	}
	return hadTemp || inserted
}

func (s *ChannelState) emit(c Change) {
	if s.listener != nil {
		s.listener(c)
	}
}

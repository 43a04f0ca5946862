package chat

import (
	"context"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
)

const unknownUser = "Unknown user"

// Profile is the display data derived for a user.
type Profile struct {
	UserID      uuid.UUID
	DisplayName string
	Initials    string
	AvatarURL   string
}

// UserLookup is the identity source behind a Resolver.
type UserLookup interface {
	LookupUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Resolver maps user ids to display data. It never fails: unknown or
// unreachable users get a placeholder profile.
type Resolver struct {
	lookup UserLookup
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]Profile
}

func NewResolver(lookup UserLookup) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: observability.Component("identity"),
		cache:  make(map[uuid.UUID]Profile),
	}
}

func (r *Resolver) Profile(ctx context.Context, userID uuid.UUID) Profile {
	r.mu.RLock()
	p, ok := r.cache[userID]
	r.mu.RUnlock()
	if ok {
		return p
	}

	u, err := r.lookup.LookupUser(ctx, userID)
	if err != nil {
		// not cached, the next call retries
		r.logger.Debug().Err(err).Stringer("user_id", userID).Msg("lookup user")
		return placeholder(userID)
	}
	if u == nil {
		p = placeholder(userID)
	} else {
		p = profileOf(u)
	}

	r.mu.Lock()
	r.cache[userID] = p
	r.mu.Unlock()
	return p
}

func (r *Resolver) DisplayName(ctx context.Context, userID uuid.UUID) string {
	return r.Profile(ctx, userID).DisplayName
}

func (r *Resolver) Avatar(ctx context.Context, userID uuid.UUID) string {
	return r.Profile(ctx, userID).AvatarURL
}

// Remember seeds the cache from data that arrived with another response.
func (r *Resolver) Remember(u *domain.User) {
	if u == nil {
		return
	}
	r.mu.Lock()
	r.cache[u.ID] = profileOf(u)
	r.mu.Unlock()
}

// RememberMember seeds the cache from a membership row.
func (r *Resolver) RememberMember(m domain.ChannelMember) {
	if m.Username == "" && m.DisplayName == "" {
		return
	}
	r.Remember(&domain.User{
		ID:          m.UserID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
	})
}

// senderProfile prefers the sender data joined onto the message.
func (r *Resolver) senderProfile(ctx context.Context, m domain.Message) Profile {
	if m.SenderDisplayName != "" || m.SenderUsername != "" {
		r.mu.RLock()
		p, ok := r.cache[m.SenderID]
		r.mu.RUnlock()
		if ok {
			return p
		}
		return profileOf(&domain.User{ID: m.SenderID, Username: m.SenderUsername, DisplayName: m.SenderDisplayName})
	}
	return r.Profile(ctx, m.SenderID)
}

func profileOf(u *domain.User) Profile {
	name := displayNameOf(u)
	p := Profile{
		UserID:      u.ID,
		DisplayName: name,
		Initials:    initials(name),
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	return p
}

func placeholder(userID uuid.UUID) Profile {
	return Profile{UserID: userID, DisplayName: unknownUser, Initials: "?"}
}

// displayNameOf falls back from display name to username to the local part
// of the email address.
func displayNameOf(u *domain.User) string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return unknownUser
}

func initials(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == '.'
	})
	if len(words) == 0 {
		return "?"
	}
	if len(words) > 2 {
		words = words[:2]
	}
	var b strings.Builder
	for _, word := range words {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

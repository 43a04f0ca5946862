package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Channel struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsPrivate bool      `json:"is_private"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// IsDM reports whether the channel carries a canonical direct-message name.
func (c *Channel) IsDM() bool {
	return c.IsPrivate && len(c.Name) > len(DMPrefix) && c.Name[:len(DMPrefix)] == DMPrefix
}

// DMPrefix starts every canonical direct-message channel name.
const DMPrefix = "dm-"

// DMName is the canonical name of the direct-message channel between a and b.
// It does not depend on argument order.
func DMName(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return DMPrefix + a + "-" + b
}

// DMParticipants recovers the two user ids from a canonical DM name.
func DMParticipants(name string) (uuid.UUID, uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(name, DMPrefix)
	if !ok || len(rest) != 2*36+1 || rest[36] != '-' {
		return uuid.Nil, uuid.Nil, false
	}
	a, errA := uuid.Parse(rest[:36])
	b, errB := uuid.Parse(rest[37:])
	if errA != nil || errB != nil || a == b {
		return uuid.Nil, uuid.Nil, false
	}
	if DMName(a.String(), b.String()) != name {
		return uuid.Nil, uuid.Nil, false
	}
	return a, b, true
}

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
	// Joined fields
	Username    string  `json:"username,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/observability"
)

// Permission is the platform's notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission maps a configured value to a Permission. Unknown values
// are treated as not yet determined.
func ParsePermission(s string) Permission {
	switch Permission(s) {
	case PermissionGranted, PermissionDenied:
		return Permission(s)
	default:
		return PermissionDefault
	}
}

// Platform provides notification permission and audio playback.
type Platform interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	PlaySound(ctx context.Context) error
}

// Gate decides whether an incoming message plays the alert sound.
type Gate struct {
	platform Platform
	once     sync.Once
	logger   zerolog.Logger
}

func NewGate(platform Platform) *Gate {
	return &Gate{platform: platform, logger: observability.Component("notify")}
}

// Prime asks for permission once per Gate, and only while the user has not
// decided yet.
func (g *Gate) Prime(ctx context.Context) {
	g.once.Do(func() {
		if g.platform.Permission() != PermissionDefault {
			return
		}
		p, err := g.platform.RequestPermission(ctx)
		if err != nil {
			g.logger.Debug().Err(err).Msg("request notification permission")
			return
		}
		g.logger.Debug().Str("permission", string(p)).Msg("notification permission")
	})
}

// MaybeNotify plays the alert for messages from other users unless the user
// denied notifications. Playback errors are swallowed. It reports whether
// playback was attempted.
func (g *Gate) MaybeNotify(ctx context.Context, senderID, localUserID uuid.UUID) bool {
	if senderID == localUserID {
		return false
	}
	switch g.platform.Permission() {
	case PermissionGranted, PermissionDefault:
	default:
		return false
	}
	if err := g.platform.PlaySound(ctx); err != nil {
		g.logger.Debug().Err(err).Msg("play notification sound")
	}
	return true
}

package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubPlatform struct {
	perm     Permission
	grant    Permission
	requests int
	plays    int
	playErr  error
}

func (p *stubPlatform) Permission() Permission { return p.perm }

func (p *stubPlatform) RequestPermission(context.Context) (Permission, error) {
	p.requests++
	p.perm = p.grant
	return p.perm, nil
}

func (p *stubPlatform) PlaySound(context.Context) error {
	p.plays++
	return p.playErr
}

func TestMaybeNotify(t *testing.T) {
	self := uuid.New()
	other := uuid.New()

	tests := []struct {
		name   string
		perm   Permission
		sender uuid.UUID
		want   bool
	}{
		{"granted, other sender", PermissionGranted, other, true},
		{"undecided, other sender", PermissionDefault, other, true},
		{"denied, other sender", PermissionDenied, other, false},
		{"granted, own message", PermissionGranted, self, false},
		{"undecided, own message", PermissionDefault, self, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubPlatform{perm: tt.perm}
			g := NewGate(p)

			played := g.MaybeNotify(context.Background(), tt.sender, self)

			assert.Equal(t, tt.want, played)
			if tt.want {
				assert.Equal(t, 1, p.plays)
			} else {
				assert.Zero(t, p.plays)
			}
		})
	}
}

func TestMaybeNotifySwallowsPlaybackErrors(t *testing.T) {
	p := &stubPlatform{perm: PermissionGranted, playErr: errors.New("no audio device")}

	assert.True(t, NewGate(p).MaybeNotify(context.Background(), uuid.New(), uuid.New()))
}

func TestPrimeRequestsOnceWhileUndecided(t *testing.T) {
	p := &stubPlatform{perm: PermissionDefault, grant: PermissionGranted}
	g := NewGate(p)

	g.Prime(context.Background())
	g.Prime(context.Background())

	assert.Equal(t, 1, p.requests)
	assert.Equal(t, PermissionGranted, p.Permission())

	decided := &stubPlatform{perm: PermissionDenied}
	NewGate(decided).Prime(context.Background())
	assert.Zero(t, decided.requests)
}

func TestParsePermission(t *testing.T) {
	assert.Equal(t, PermissionGranted, ParsePermission("granted"))
	assert.Equal(t, PermissionDenied, ParsePermission("denied"))
	assert.Equal(t, PermissionDefault, ParsePermission("whatever"))
}

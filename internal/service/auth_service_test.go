package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/mocks"
)

func TestRegisterThenLogin(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := NewAuthService(users, "secret")

	var stored *domain.User
	users.On("GetByEmail", mock.Anything, "ana@example.com").Return(nil, nil).Once()
	users.On("GetByUsername", mock.Anything, "ana").Return(nil, nil).Once()
	users.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.User) }).
		Return(nil).Once()

	reg, err := svc.Register(context.Background(), RegisterInput{
		Email: "ana@example.com", Username: "ana", DisplayName: "Ana", Password: "Secret123",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", stored.PasswordHash)

	id, err := svc.ParseToken(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, id)

	users.On("GetByEmail", mock.Anything, "ana@example.com").Return(stored, nil)

	_, err = svc.Login(context.Background(), LoginInput{Email: "ana@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCreds)

	resp, err := svc.Login(context.Background(), LoginInput{Email: "ana@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, resp.User.ID)
}

func TestRegisterEmailTaken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := NewAuthService(users, "secret")
	users.On("GetByEmail", mock.Anything, "ana@example.com").Return(&domain.User{ID: uuid.New()}, nil).Once()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "ana@example.com", Username: "ana", Password: "Secret123"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	other := NewAuthService(new(mocks.UserRepositoryMock), "other")
	token, err := other.generateToken(uuid.New())
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("secret"))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserProfileHidesEmail(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	svc := NewUserService(users)
	id := uuid.New()
	users.On("GetByID", mock.Anything, id).Return(&domain.User{ID: id, Email: "x@example.com", Username: "x"}, nil).Once()
	missing := uuid.New()
	users.On("GetByID", mock.Anything, missing).Return(nil, nil).Once()

	u, err := svc.Profile(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, u.Email)
	assert.Equal(t, "x", u.Username)

	_, err = svc.Profile(context.Background(), missing)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestLoginNormalizesEmail(t *testing.T) {
	hash, err := hashPassword("Secret123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	users := new(mocks.UserRepositoryMock)
	svc := NewAuthService(users, "secret")
	stored := &domain.User{ID: uuid.New(), Email: "ana@example.com", PasswordHash: hash}
	users.On("GetByEmail", mock.Anything, "ana@example.com").Return(stored, nil).Once()

	resp, err := svc.Login(context.Background(), LoginInput{Email: "  Ana@Example.com ", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, resp.User.ID)
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	for _, encoded := range []string{
		"",
		"salt:hash",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=4$c2FsdA$aGFzaA",
	} {
		assert.False(t, verifyPassword("Secret123", encoded), encoded)
	}
}

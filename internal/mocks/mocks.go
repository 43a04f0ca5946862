package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
)

var (
	_ repository.UserRepository    = (*UserRepositoryMock)(nil)
	_ repository.ChannelRepository = (*ChannelRepositoryMock)(nil)
	_ repository.MessageRepository = (*MessageRepositoryMock)(nil)
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *UserRepositoryMock) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	return userArg(args.Get(0)), args.Error(1)
}

func (m *UserRepositoryMock) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	return userArg(args.Get(0)), args.Error(1)
}

func userArg(v any) *domain.User {
	if v == nil {
		return nil
	}
	return v.(*domain.User)
}

type ChannelRepositoryMock struct {
	mock.Mock
}

func (m *ChannelRepositoryMock) Create(ctx context.Context, ch *domain.Channel) error {
	args := m.Called(ctx, ch)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	args := m.Called(ctx, id)
	return channelArg(args.Get(0)), args.Error(1)
}

func (m *ChannelRepositoryMock) GetByName(ctx context.Context, name string) (*domain.Channel, error) {
	args := m.Called(ctx, name)
	return channelArg(args.Get(0)), args.Error(1)
}

func (m *ChannelRepositoryMock) ListVisible(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	args := m.Called(ctx, userID)
	var list []domain.Channel
	if val := args.Get(0); val != nil {
		list = val.([]domain.Channel)
	}
	return list, args.Error(1)
}

func (m *ChannelRepositoryMock) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) AddMember(ctx context.Context, member *domain.ChannelMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *ChannelRepositoryMock) GetMember(ctx context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error) {
	args := m.Called(ctx, channelID, userID)
	var cm *domain.ChannelMember
	if val := args.Get(0); val != nil {
		cm = val.(*domain.ChannelMember)
	}
	return cm, args.Error(1)
}

func (m *ChannelRepositoryMock) ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	args := m.Called(ctx, channelID)
	var list []domain.ChannelMember
	if val := args.Get(0); val != nil {
		list = val.([]domain.ChannelMember)
	}
	return list, args.Error(1)
}

func channelArg(v any) *domain.Channel {
	if v == nil {
		return nil
	}
	return v.(*domain.Channel)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, id)
	return messageArg(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) GetByClientID(ctx context.Context, senderID uuid.UUID, clientID string) (*domain.Message, error) {
	args := m.Called(ctx, senderID, clientID)
	return messageArg(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) ListByChannel(ctx context.Context, channelID uuid.UUID, before *repository.MessageCursor, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, channelID, before, limit)
	var list []domain.Message
	if val := args.Get(0); val != nil {
		list = val.([]domain.Message)
	}
	return list, args.Error(1)
}

func messageArg(v any) *domain.Message {
	if v == nil {
		return nil
	}
	return v.(*domain.Message)
}

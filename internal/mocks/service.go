package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/vedran77/pulsechat/internal/domain"
)

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) NotifyNewMessage(msg *domain.Message) {
	m.Called(msg)
}

func (m *NotifierMock) NotifyChannelDeleted(channelID uuid.UUID) {
	m.Called(channelID)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

type IdempotencyStoreMock struct {
	mock.Mock
}

func (m *IdempotencyStoreMock) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *IdempotencyStoreMock) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/events"
	"github.com/vedran77/pulsechat/internal/mocks"
	"github.com/vedran77/pulsechat/internal/repository"
)

type messageFixture struct {
	svc      *MessageService
	channels *mocks.ChannelRepositoryMock
	messages *mocks.MessageRepositoryMock
	notifier *mocks.NotifierMock
	channel  *domain.Channel
	user     uuid.UUID
}

func newMessageFixture(private bool) *messageFixture {
	channels := new(mocks.ChannelRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.NotifierMock)
	svc := NewMessageService(messages, NewChannelService(channels, new(mocks.UserRepositoryMock)))
	svc.SetNotifier(notifier)

	f := &messageFixture{
		svc:      svc,
		channels: channels,
		messages: messages,
		notifier: notifier,
		channel:  &domain.Channel{ID: uuid.New(), Name: "general", IsPrivate: private},
		user:     uuid.New(),
	}
	channels.On("GetByID", mock.Anything, f.channel.ID).Return(f.channel, nil)
	return f
}

func TestSendRejectsBlankContent(t *testing.T) {
	f := newMessageFixture(false)

	_, err := f.svc.Send(context.Background(), f.user, f.channel.ID, SendMessageInput{Content: "  \n"})
	require.ErrorIs(t, err, ErrEmptyContent)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendPersistsNotifiesAndPublishes(t *testing.T) {
	f := newMessageFixture(false)
	publisher := new(mocks.PublisherMock)
	f.svc.SetPublisher(publisher)

	full := &domain.Message{ID: uuid.New(), ChannelID: f.channel.ID, SenderID: f.user, Content: "hi", SenderUsername: "ana"}
	var created *domain.Message
	f.messages.On("Create", mock.Anything, mock.AnythingOfType("*domain.Message")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.Message) }).
		Return(nil).Once()
	f.messages.On("GetByID", mock.Anything, mock.Anything).Return(full, nil).Once()
	f.notifier.On("NotifyNewMessage", mock.MatchedBy(func(m *domain.Message) bool {
		return m.Content == "hi" && m.SenderUsername == "ana"
	})).Once()
	publisher.On("Publish", mock.Anything, events.RoutingMessageCreated, mock.AnythingOfType("events.MessageCreated")).Return(nil).Once()

	msg, err := f.svc.Send(context.Background(), f.user, f.channel.ID, SendMessageInput{Content: "hi", ClientID: "tmp-1"})
	require.NoError(t, err)
	assert.Equal(t, "ana", msg.SenderUsername)
	assert.Equal(t, "hi", created.Content)
	assert.Equal(t, "tmp-1", created.ClientID)
	assert.Equal(t, f.user, created.SenderID)
	f.notifier.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSendReplaysClaimedClientID(t *testing.T) {
	f := newMessageFixture(false)
	idem := new(mocks.IdempotencyStoreMock)
	f.svc.SetIdempotencyStore(idem)

	existing := &domain.Message{ID: uuid.New(), ChannelID: f.channel.ID, SenderID: f.user, Content: "hi", ClientID: "tmp-1"}
	idem.On("Claim", mock.Anything, f.user.String()+":tmp-1").Return(false, nil).Once()
	f.messages.On("GetByClientID", mock.Anything, f.user, "tmp-1").Return(existing, nil).Once()

	msg, err := f.svc.Send(context.Background(), f.user, f.channel.ID, SendMessageInput{Content: "hi", ClientID: "tmp-1"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, msg.ID)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "NotifyNewMessage", mock.Anything)
}

func TestSendClaimedButNotYetStored(t *testing.T) {
	f := newMessageFixture(false)
	idem := new(mocks.IdempotencyStoreMock)
	f.svc.SetIdempotencyStore(idem)

	idem.On("Claim", mock.Anything, mock.Anything).Return(false, nil).Once()
	f.messages.On("GetByClientID", mock.Anything, f.user, "tmp-1").Return(nil, nil).Once()

	_, err := f.svc.Send(context.Background(), f.user, f.channel.ID, SendMessageInput{Content: "hi", ClientID: "tmp-1"})
	require.ErrorIs(t, err, ErrSendInFlight)
}

func TestSendDuplicateRowReplays(t *testing.T) {
	f := newMessageFixture(false)
	existing := &domain.Message{ID: uuid.New(), Content: "hi", ClientID: "tmp-2"}

	f.messages.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicate).Once()
	f.messages.On("GetByClientID", mock.Anything, f.user, "tmp-2").Return(existing, nil).Once()

	msg, err := f.svc.Send(context.Background(), f.user, f.channel.ID, SendMessageInput{Content: "hi", ClientID: "tmp-2"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, msg.ID)
	f.notifier.AssertNotCalled(t, "NotifyNewMessage", mock.Anything)
}

func TestSendFailureReleasesClaim(t *testing.T) {
	f := newMessageFixture(false)
	idem := new(mocks.IdempotencyStoreMock)
	f.svc.SetIdempotencyStore(idem)

	key := f.user.String() + ":tmp-3"
	idem.On("Claim", mock.Anything, key).Return(true, nil).Once()
	idem.On("Release", mock.Anything, key).Return(nil).Once()
	f.messages.On("Create", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	_, err := f.svc.Send(context.Background(), f.user, f.channel.ID, SendMessageInput{Content: "hi", ClientID: "tmp-3"})
	require.ErrorIs(t, err, assert.AnError)
	idem.AssertExpectations(t)
}

func TestSendToPrivateChannelRequiresMembership(t *testing.T) {
	f := newMessageFixture(true)
	f.channels.On("GetMember", mock.Anything, f.channel.ID, f.user).Return(nil, nil).Once()

	_, err := f.svc.Send(context.Background(), f.user, f.channel.ID, SendMessageInput{Content: "hi"})
	require.ErrorIs(t, err, ErrNotChannelMember)
}

func TestListTrimsToLimitNewestFirst(t *testing.T) {
	f := newMessageFixture(false)
	base := time.Now().UTC()
	page := []domain.Message{
		{ID: uuid.New(), CreatedAt: base},
		{ID: uuid.New(), CreatedAt: base.Add(-time.Second)},
		{ID: uuid.New(), CreatedAt: base.Add(-2 * time.Second)},
	}
	cursor := &repository.MessageCursor{CreatedAt: base.Add(time.Minute)}

	f.messages.On("ListByChannel", mock.Anything, f.channel.ID, cursor, 3).Return(page, nil).Once()

	resp, err := f.svc.List(context.Background(), f.user, f.channel.ID, cursor, 2)
	require.NoError(t, err)
	assert.True(t, resp.HasMore)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, page[0].ID, resp.Messages[0].ID)
	assert.Equal(t, page[1].ID, resp.Messages[1].ID)
}

func TestListDefaultsLimitAndNeverReturnsNil(t *testing.T) {
	f := newMessageFixture(false)
	f.messages.On("ListByChannel", mock.Anything, f.channel.ID, (*repository.MessageCursor)(nil), DefaultPageSize+1).Return(nil, nil).Once()

	resp, err := f.svc.List(context.Background(), f.user, f.channel.ID, nil, 0)
	require.NoError(t, err)
	assert.False(t, resp.HasMore)
	assert.NotNil(t, resp.Messages)
}

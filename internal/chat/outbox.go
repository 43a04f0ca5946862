package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
)

// Outbox sends messages optimistically: the entry shows up at once under a
// temp id and is later replaced by the stored message or rolled back.
type Outbox struct {
	backend   Backend
	directory *Directory
	resolver  *Resolver
	now       func() time.Time
	logger    zerolog.Logger
}

func NewOutbox(backend Backend, directory *Directory, resolver *Resolver) *Outbox {
	return &Outbox{
		backend:   backend,
		directory: directory,
		resolver:  resolver,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    observability.Component("outbox"),
	}
}

// Send posts content to the conversation held by st. A pending DM is created
// first. Failures after the optimistic insert return a *SendError and leave
// no trace in the timeline.
func (o *Outbox) Send(ctx context.Context, st *ChannelState, senderID uuid.UUID, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if !st.Active() {
		return nil, ErrNoActiveChannel
	}

	conv := st.Conversation()
	tempID := newTempID()
	sender := o.resolver.Profile(ctx, senderID)

	draft := domain.Message{
		SenderID:  senderID,
		Content:   content,
		CreatedAt: o.now(),
	}
	if conv.Channel != nil {
		draft.ChannelID = conv.Channel.ID
	}
	st.insert(pendingEntry(tempID, draft, sender))

	channel := conv.Channel
	if channel == nil {
		ch, created, err := o.directory.CreateDM(ctx, conv.Pending, senderID)
		if err != nil {
			return nil, o.rollback(st, tempID, err)
		}
		st.promote(ch, created)
		channel = ch
	}

	msg, err := o.backend.InsertMessage(ctx, channel.ID, senderID, content, tempID)
	if err != nil {
		return nil, o.rollback(st, tempID, err)
	}

	st.reconcile(tempID, committedEntry(*msg, o.resolver.senderProfile(ctx, *msg)))
	return msg, nil
}

func (o *Outbox) rollback(st *ChannelState, tempID string, cause error) error {
	st.remove(tempID)
	observability.IncClientEvent(observability.ClientRollback)
	o.logger.Warn().Err(cause).Str("temp_id", tempID).Msg("send failed, rolled back")
	return &SendError{TempID: tempID, Err: cause}
}

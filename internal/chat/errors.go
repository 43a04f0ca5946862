package chat

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrDuplicateChannel = errors.New("channel name already exists")
	ErrNotAuthorized    = errors.New("only the channel creator can delete it")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrChannelDeleted   = errors.New("channel was deleted")
	ErrReservedName     = errors.New("channel names starting with dm- are reserved")
	ErrInvalidName      = errors.New("channel name is empty")
	ErrCannotDMSelf     = errors.New("cannot open a direct message with yourself")
	ErrEmptyMessage     = errors.New("message content is empty")
	ErrNoActiveChannel  = errors.New("no active conversation")
)

// SendError reports a failed send. The optimistic entry identified by
// TempID has already been removed from the timeline.
type SendError struct {
	TempID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.TempID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// FetchError reports a failed page query. The timeline is unchanged and
// the fetch may be retried.
type FetchError struct {
	ChannelID uuid.UUID
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch messages for channel %s: %v", e.ChannelID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

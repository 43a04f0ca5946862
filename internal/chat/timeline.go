package chat

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/pulsechat/internal/domain"
)

// TempPrefix marks client-side ids. Server ids are UUIDs and can never
// carry it.
const TempPrefix = "tmp-"

// EntryState tells optimistic entries from persisted ones.
type EntryState int

const (
	Pending EntryState = iota + 1
	Committed
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Entry is one line of a conversation view. A Pending entry is keyed by its
// temp id and has no server id; a Committed entry is keyed by the server id.
type Entry struct {
	State   EntryState
	Key     string
	Message domain.Message
	Sender  Profile
}

func pendingEntry(tempID string, msg domain.Message, sender Profile) Entry {
	msg.ID = uuid.Nil
	msg.ClientID = tempID
	return Entry{State: Pending, Key: tempID, Message: msg, Sender: sender}
}

func committedEntry(msg domain.Message, sender Profile) Entry {
	return Entry{State: Committed, Key: msg.ID.String(), Message: msg, Sender: sender}
}

func (e Entry) IsPending() bool { return e.State == Pending }

// newTempID returns a time-ordered temp id, so optimistic entries sharing a
// timestamp keep their send order.
func newTempID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return TempPrefix + uuid.NewString()
	}
	return TempPrefix + id.String()
}

// IsTempID reports whether key names an optimistic entry.
func IsTempID(key string) bool {
	return strings.HasPrefix(key, TempPrefix)
}

// Timeline is an ordered, key-unique list of entries, oldest first.
// It is not safe for concurrent use; ChannelState guards it.
type Timeline struct {
	entries []Entry
	keys    map[string]struct{}
}

func (t *Timeline) Len() int { return len(t.entries) }

func (t *Timeline) Contains(key string) bool {
	_, ok := t.keys[key]
	return ok
}

// Entries returns a copy of the list.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Insert places e by CreatedAt, after any entries with the same timestamp.
// It reports false and changes nothing when the key is already present.
func (t *Timeline) Insert(e Entry) bool {
	if t.Contains(e.Key) {
		return false
	}
	if t.keys == nil {
		t.keys = make(map[string]struct{})
	}
	t.keys[e.Key] = struct{}{}

	n := len(t.entries)
	if n == 0 || !before(e, t.entries[n-1]) {
		t.entries = append(t.entries, e)
		return true
	}
	i := sort.Search(n, func(i int) bool { return before(e, t.entries[i]) })
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
	return true
}

// Remove deletes the entry with key and reports whether it existed.
func (t *Timeline) Remove(key string) bool {
	if !t.Contains(key) {
		return false
	}
	delete(t.keys, key)
	for i := range t.entries {
		if t.entries[i].Key == key {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	return true
}

// Replace swaps the entry at oldKey for e. If e is already present only the
// old entry is removed. It reports whether e was inserted.
func (t *Timeline) Replace(oldKey string, e Entry) bool {
	t.Remove(oldKey)
	return t.Insert(e)
}

// PendingFor returns the key of the optimistic entry carrying clientID.
func (t *Timeline) PendingFor(clientID string) (string, bool) {
	if clientID == "" || !t.Contains(clientID) {
		return "", false
	}
	return clientID, true
}

// Oldest returns the cursor of the oldest committed entry.
func (t *Timeline) Oldest() (*Cursor, bool) {
	for _, e := range t.entries {
		if e.State == Committed {
			return &Cursor{CreatedAt: e.Message.CreatedAt, ID: e.Message.ID}, true
		}
	}
	return nil, false
}

// TrimBefore drops committed entries older than c and returns them.
// Pending entries stay.
func (t *Timeline) TrimBefore(c Cursor) []Entry {
	bound := Entry{State: Committed, Key: c.ID.String(), Message: domain.Message{ID: c.ID, CreatedAt: c.CreatedAt}}
	var dropped []Entry
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.State == Committed && before(e, bound) {
			dropped = append(dropped, e)
			delete(t.keys, e.Key)
			continue
		}
		kept = append(kept, e)
	}
	clear(t.entries[len(kept):])
	t.entries = kept
	return dropped
}

// before orders entries by time. Equal times put committed entries first,
// then order by key, so no two distinct entries compare equal.
func before(a, b Entry) bool {
	if !a.Message.CreatedAt.Equal(b.Message.CreatedAt) {
		return a.Message.CreatedAt.Before(b.Message.CreatedAt)
	}
	if a.State != b.State {
		return a.State == Committed
	}
	return a.Key < b.Key
}

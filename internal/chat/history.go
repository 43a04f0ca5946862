package chat

import (
	"context"
	"slices"

	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
)

const (
	DefaultPageSize = 20
	// maxCatchUpPages bounds how far back a catch-up walks. Without overlap
	// by then, older entries are trimmed so the view stays contiguous.
	maxCatchUpPages = 10
)

// PageResult describes the outcome of a page fetch.
type PageResult struct {
	// Added is the number of entries merged into the timeline.
	Added int
	// Dropped is set when another fetch for the channel was in flight.
	Dropped bool
	// Stale is set when the conversation closed before the page arrived.
	Stale bool
	// Exhausted is set once the oldest message has been loaded.
	Exhausted bool
}

// History loads pages of messages into a ChannelState.
type History struct {
	backend  Backend
	resolver *Resolver
	pageSize int
	logger   zerolog.Logger
}

func NewHistory(backend Backend, resolver *Resolver, pageSize int) *History {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &History{
		backend:  backend,
		resolver: resolver,
		pageSize: pageSize,
		logger:   observability.Component("history"),
	}
}

func (h *History) PageSize() int { return h.pageSize }

// LoadInitial fetches the newest page.
func (h *History) LoadInitial(ctx context.Context, st *ChannelState) (PageResult, error) {
	return h.fetch(ctx, st, true)
}

// LoadOlder fetches the page before the oldest loaded message. It is a no-op
// once the channel is exhausted.
func (h *History) LoadOlder(ctx context.Context, st *ChannelState) (PageResult, error) {
	return h.fetch(ctx, st, false)
}

func (h *History) fetch(ctx context.Context, st *ChannelState, initial bool) (PageResult, error) {
	st.mu.Lock()
	channelID, ok := st.channelIDLocked()
	switch {
	case st.closed:
		st.mu.Unlock()
		return PageResult{Stale: true}, nil
	case !ok:
		// pending DM, nothing stored yet
		st.mu.Unlock()
		return PageResult{Exhausted: true}, nil
	case st.fetching:
		st.mu.Unlock()
		observability.IncClientEvent(observability.ClientFetchDrop)
		return PageResult{Dropped: true}, nil
	case !initial && st.exhausted:
		st.mu.Unlock()
		return PageResult{Exhausted: true}, nil
	}

	var before *Cursor
	if !initial {
		before, ok = st.timeline.Oldest()
		if !ok && st.loaded {
			st.exhausted = true
			st.mu.Unlock()
			return PageResult{Exhausted: true}, nil
		}
	}
	st.fetching = true
	st.mu.Unlock()

	msgs, err := h.backend.QueryMessages(ctx, channelID, h.pageSize, before)
	var entries []Entry
	if err == nil {
		entries = h.entries(ctx, msgs)
	}

	st.mu.Lock()
	st.fetching = false
	if st.closed {
		st.mu.Unlock()
		observability.IncClientEvent(observability.ClientStalePage)
		h.logger.Debug().Stringer("channel_id", channelID).Msg("discarded page for inactive channel")
		return PageResult{Stale: true}, nil
	}
	if err != nil {
		st.mu.Unlock()
		return PageResult{}, &FetchError{ChannelID: channelID, Err: err}
	}

	res := PageResult{}
	var merged []Entry
	for _, e := range entries {
		if st.timeline.Insert(e) {
			merged = append(merged, e)
		}
	}
	res.Added = len(merged)
	st.loaded = true
	if len(msgs) < h.pageSize {
		st.exhausted = true
	}
	res.Exhausted = st.exhausted
	st.mu.Unlock()

	if len(merged) > 0 {
		st.emit(Change{Kind: ChangeHistory, ChannelID: channelID, Entries: merged})
	}
	return res, nil
}

// CatchUp pages backward from the newest message until a page overlaps the
// view or the channel is exhausted. It closes gaps left by a dropped
// subscription and reports how many entries it added. After maxCatchUpPages
// without overlap it drops the committed entries below the gap and reopens
// paging, so LoadOlder continues from the oldest caught-up message.
func (h *History) CatchUp(ctx context.Context, st *ChannelState) (int, error) {
	st.mu.Lock()
	channelID, ok := st.channelIDLocked()
	if st.closed || !ok {
		st.mu.Unlock()
		return 0, nil
	}
	if st.fetching {
		st.mu.Unlock()
		observability.IncClientEvent(observability.ClientFetchDrop)
		return 0, nil
	}
	st.fetching = true
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		st.fetching = false
		st.mu.Unlock()
	}()

	var before *Cursor
	added := 0
	reached := false
	for page := 0; page < maxCatchUpPages; page++ {
		msgs, err := h.backend.QueryMessages(ctx, channelID, h.pageSize, before)
		if err != nil {
			return added, &FetchError{ChannelID: channelID, Err: err}
		}
		entries := h.entries(ctx, msgs)

		st.mu.Lock()
		if st.closed {
			st.mu.Unlock()
			observability.IncClientEvent(observability.ClientStalePage)
			return added, nil
		}
		overlap := false
		var merged []Entry
		for _, e := range entries {
			if st.timeline.Insert(e) {
				merged = append(merged, e)
			} else {
				overlap = true
			}
		}
		short := len(msgs) < h.pageSize
		if short {
			st.exhausted = true
		}
		st.mu.Unlock()

		added += len(merged)
		if len(merged) > 0 {
			st.emit(Change{Kind: ChangeHistory, ChannelID: channelID, Entries: merged})
		}
		if overlap || short {
			reached = true
			break
		}
		oldest := msgs[len(msgs)-1]
		before = &Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID}
	}

	if !reached && before != nil {
		st.mu.Lock()
		if st.closed {
			st.mu.Unlock()
			return added, nil
		}
		trimmed := st.timeline.TrimBefore(*before)
		st.exhausted = false
		st.mu.Unlock()

		h.logger.Warn().Stringer("channel_id", channelID).Int("trimmed", len(trimmed)).Msg("catch-up did not reach the view")
		if len(trimmed) > 0 {
			st.emit(Change{Kind: ChangeTrimmed, ChannelID: channelID, Entries: trimmed})
		}
	}

	if added > 0 {
		h.logger.Debug().Stringer("channel_id", channelID).Int("added", added).Msg("caught up")
	}
	return added, nil
}

// entries converts a newest-first page into oldest-first entries.
func (h *History) entries(ctx context.Context, msgs []domain.Message) []Entry {
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, committedEntry(m, h.resolver.senderProfile(ctx, m)))
	}
	slices.Reverse(out)
	return out
}

package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
)

// Bridge feeds live inserts for the active channel into its ChannelState.
type Bridge struct {
	backend    Backend
	history    *History
	resolver   *Resolver
	gate       *Gate
	selfID     uuid.UUID
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

func NewBridge(backend Backend, history *History, resolver *Resolver, gate *Gate, selfID uuid.UUID) *Bridge {
	return &Bridge{
		backend:    backend,
		history:    history,
		resolver:   resolver,
		gate:       gate,
		selfID:     selfID,
		newBackOff: defaultBackOff,
		logger:     observability.Component("bridge"),
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// SetBackOff replaces the resubscribe policy.
func (b *Bridge) SetBackOff(fn func() backoff.BackOff) {
	b.newBackOff = fn
}

// Attachment is the live subscription of one ChannelState.
type Attachment struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	sub    Subscription
	closed bool
}

// Close unsubscribes and waits for the reconnect loop to stop. It must not
// be called from a Change listener.
func (a *Attachment) Close() {
	a.cancel()
	a.mu.Lock()
	a.closed = true
	sub := a.sub
	a.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	<-a.done
}

func (a *Attachment) current() Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sub
}

func (a *Attachment) replace(sub Subscription) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.sub = sub
	return true
}

// Attach subscribes to inserts for the channel held by st. When the
// subscription drops while st is active, it is re-established with backoff
// and the gap is closed with History.CatchUp.
func (b *Bridge) Attach(ctx context.Context, st *ChannelState) (*Attachment, error) {
	channelID, ok := st.ChannelID()
	if !ok || !st.Active() {
		return nil, ErrNoActiveChannel
	}

	onEvent := b.handler(st, channelID)
	sub, err := b.backend.SubscribeInserts(ctx, channelID, onEvent)
	if err != nil {
		return nil, err
	}

	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &Attachment{cancel: cancel, done: make(chan struct{}), sub: sub}
	go b.watch(actx, st, channelID, a, onEvent)
	return a, nil
}

func (b *Bridge) watch(ctx context.Context, st *ChannelState, channelID uuid.UUID, a *Attachment, onEvent func(domain.Message)) {
	defer close(a.done)
	log := b.logger.With().Stringer("channel_id", channelID).Logger()

	for {
		sub := a.current()
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
		}
		if ctx.Err() != nil {
			return
		}

		if errors.Is(sub.Err(), ErrChannelDeleted) {
			log.Info().Msg("channel deleted")
			st.Close(ErrChannelDeleted)
			return
		}
		if !st.Active() {
			return
		}

		log.Warn().Err(sub.Err()).Msg("subscription dropped, resubscribing")
		observability.IncClientEvent(observability.ClientResubscribe)

		var next Subscription
		op := func() error {
			s, err := b.backend.SubscribeInserts(ctx, channelID, onEvent)
			if err != nil {
				log.Debug().Err(err).Msg("resubscribe attempt failed")
				return err
			}
			next = s
			return nil
		}
		if err := backoff.Retry(op, backoff.WithContext(b.newBackOff(), ctx)); err != nil {
			return
		}
		if !a.replace(next) {
			next.Close()
			return
		}

		if _, err := b.history.CatchUp(ctx, st); err != nil {
			log.Warn().Err(err).Msg("catch up after resubscribe")
		}
	}
}

func (b *Bridge) handler(st *ChannelState, channelID uuid.UUID) func(domain.Message) {
	return func(m domain.Message) {
		if m.ChannelID != channelID {
			return
		}
		if st.Contains(m.ID.String()) {
			observability.IncClientEvent(observability.ClientDedupDrop)
			return
		}

		e := committedEntry(m, b.resolver.senderProfile(context.Background(), m))
		var added bool
		if IsTempID(m.ClientID) && st.Contains(m.ClientID) {
			// our own send, echoed before the insert call returned
			added = st.reconcile(m.ClientID, e)
		} else {
			added = st.insert(e)
		}
		if !added {
			observability.IncClientEvent(observability.ClientDedupDrop)
			return
		}

		if m.SenderID != b.selfID && b.gate != nil {
			b.gate.MaybeNotify(context.Background(), m.SenderID, b.selfID)
		}
	}
}

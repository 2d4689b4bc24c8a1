package subscription

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/rickgao/wire/internal/protocol"
)

// Repository maps channels to Subscriptions and to unclaimed Handles. Reads may happen on
// any goroutine; All returns a point-in-time copy in insertion order.
type Repository struct {
	logger *slog.Logger

	mu      sync.RWMutex
	subs    map[string]*Subscription
	order   []string
	handles map[string]Handle

	hmu     sync.Mutex
	onCount []func(int)
}

// NewRepository creates an empty repository.
func NewRepository(logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		logger:  logger,
		subs:    make(map[string]*Subscription),
		handles: make(map[string]Handle),
	}
}

// OnCountChanged registers fn to receive the subscription count after every add or remove.
func (r *Repository) OnCountChanged(fn func(count int)) {
	r.hmu.Lock()
	r.onCount = append(r.onCount, fn)
	r.hmu.Unlock()
}

// Add registers sub under its channel, replacing any Handle for the same channel.
func (r *Repository) Add(sub *Subscription) error {
	channel := sub.Channel()
	if channel == "" {
		return ErrEmptyChannel
	}

	r.mu.Lock()
	delete(r.handles, channel)
	if _, ok := r.subs[channel]; !ok {
		r.order = append(r.order, channel)
	}
	r.subs[channel] = sub
	count := len(r.subs)
	r.mu.Unlock()

	r.emitCount(count)
	return nil
}

// Remove drops sub and notifies it that unsubscription completed. It returns
// ErrAlreadyUnsubscribed when sub was not registered.
func (r *Repository) Remove(sub *Subscription) error {
	channel := sub.Channel()

	r.mu.Lock()
	current, ok := r.subs[channel]
	removed := ok && current == sub
	if removed {
		delete(r.subs, channel)
		r.order = slices.DeleteFunc(r.order, func(c string) bool { return c == channel })
	}
	count := len(r.subs)
	r.mu.Unlock()

	sub.OnUnsubscriptionComplete()

	if !removed {
		return ErrAlreadyUnsubscribed
	}
	r.emitCount(count)
	return nil
}

// Get returns the Subscription registered for channel.
func (r *Repository) Get(channel string) (*Subscription, bool) {
	if channel == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[channel]
	return sub, ok
}

// All returns a snapshot of every registered Subscription in insertion order.
func (r *Repository) All() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, 0, len(r.order))
	for _, channel := range r.order {
		out = append(out, r.subs[channel])
	}
	return out
}

func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Repository) IsEmpty() bool {
	return r.Len() == 0
}

// Handles returns the channels the server reported without a local Subscription.
func (r *Repository) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// IsAlreadySubscribed reports whether channel has a synced Subscription.
func (r *Repository) IsAlreadySubscribed(channel string) bool {
	sub, ok := r.Get(channel)
	return ok && sub.IsSynced()
}

// IsRecovering reports whether sub's channel is registered but not synced, i.e. the
// subscription is being re-established after a connection gap.
func (r *Repository) IsRecovering(sub *Subscription) bool {
	channel := sub.Channel()
	if channel == "" {
		return false
	}
	_, ok := r.Get(channel)
	return ok && !sub.IsSynced()
}

// OnSubscriptionComplete applies a subscribe (or recovery) reply: missed publications are
// replayed, the offset is moved to the relay's position and the subscription is marked
// synced and registered. Error replies leave sub unregistered and are returned.
func (r *Repository) OnSubscriptionComplete(sub *Subscription, reply *protocol.Reply) error {
	if reply.HasError() {
		r.logger.Error("subscription rejected",
			"channel", sub.Channel(),
			"error", reply.Err(),
		)
		return reply.Err()
	}

	res := reply.Result
	if res == nil {
		res = &protocol.Result{}
	}

	if res.Offset != sub.Offset() {
		if len(res.Publications) > 0 {
			sub.OnMessageReceived(&protocol.Reply{Result: &protocol.Result{
				Channel:      sub.Channel(),
				Publications: res.Publications,
			}})
		}
		sub.SetOffset(res.Offset)
	}

	recovering := r.IsRecovering(sub)
	sub.OnConnectivityChange(true)

	if !recovering {
		return r.Add(sub)
	}
	return nil
}

// RecoverSubscriptions reconciles the per-channel state reported in a connect reply.
func (r *Repository) RecoverSubscriptions(res *protocol.Result) {
	if res == nil || len(res.Subs) == 0 {
		return
	}

	channels := make([]string, 0, len(res.Subs))
	for channel := range res.Subs {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	for _, channel := range channels {
		state := res.Subs[channel]

		sub, ok := r.Get(channel)
		if !ok {
			r.addHandle(channel)
			continue
		}

		if state.Epoch != "" {
			sub.SetEpoch(state.Epoch)
		}

		reply := &protocol.Reply{Result: &protocol.Result{
			Channel:      channel,
			Epoch:        state.Epoch,
			Offset:       state.Offset,
			Recoverable:  state.Recoverable,
			Recovered:    state.Recovered,
			Publications: state.Publications,
		}}
		if err := r.OnSubscriptionComplete(sub, reply); err != nil {
			r.logger.Error("recover subscription", "channel", channel, "error", err)
		}
	}
}

// ServerHasSubscription reports whether the server announced sub's channel without a local
// Subscription claiming it.
func (r *Repository) ServerHasSubscription(sub *Subscription) bool {
	channel := sub.Channel()
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[channel]
	return ok
}

// PromoteSubscriptionHandle adopts a server-originated subscription: the Handle is dropped
// and sub is registered as synced without a SUBSCRIBE round trip.
func (r *Repository) PromoteSubscriptionHandle(sub *Subscription) error {
	channel := sub.Channel()

	r.mu.RLock()
	_, exists := r.subs[channel]
	_, hasHandle := r.handles[channel]
	r.mu.RUnlock()

	if exists {
		r.logger.Error("promoting handle over an existing subscription", "channel", channel)
	}
	if !hasHandle {
		r.logger.Error("no handle to promote", "channel", channel)
	}

	if err := r.Add(sub); err != nil {
		return err
	}
	sub.OnConnectivityChange(true)
	return nil
}

// OnSocketClosed marks every registered Subscription unsynced. Entries are kept for recovery.
func (r *Repository) OnSocketClosed() {
	for _, sub := range r.All() {
		sub.OnConnectivityChange(false)
	}
}

// Clear empties both maps without notifying subscriptions.
func (r *Repository) Clear() {
	r.mu.Lock()
	r.subs = make(map[string]*Subscription)
	r.order = nil
	r.handles = make(map[string]Handle)
	r.mu.Unlock()

	r.emitCount(0)
}

func (r *Repository) addHandle(channel string) {
	r.mu.Lock()
	if _, ok := r.subs[channel]; !ok {
		r.handles[channel] = Handle{Channel: channel}
	}
	r.mu.Unlock()
	r.logger.Debug("server reported unclaimed subscription", "channel", channel)
}

func (r *Repository) emitCount(count int) {
	r.hmu.Lock()
	handlers := append([]func(int){}, r.onCount...)
	r.hmu.Unlock()
	for _, fn := range handlers {
		fn(count)
	}
}

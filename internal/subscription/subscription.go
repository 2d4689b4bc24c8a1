package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/wire/internal/protocol"
	"github.com/rickgao/wire/internal/token"
)

// Subscription is one channel subscription. It is safe for concurrent use; handlers are
// invoked without the internal lock held, after the state they observe has been applied.
type Subscription struct {
	wf       Workflow
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	tokens   token.Provider
	channel  string
	offset   uint64
	epoch    string
	state    State
	disposed bool

	onMessage []func(string)
	onBinary  []func([]byte)
	onKick    []func()
	onState   []func(State)
	onError   []func(string)
}

// New creates an unsynced Subscription whose channel is resolved from tokens on first
// subscribe.
func New(tokens token.Provider, wf Workflow, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscription{
		wf:     wf,
		logger: logger,
		tokens: tokens,
		state:  StateUnsynced,
	}
	if n, ok := wf.(Notifier); ok {
		s.notifier = n
	}
	return s
}

// Channel returns the bound channel, or "" before the first token retrieval.
func (s *Subscription) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *Subscription) Offset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// SetOffset overwrites the stream offset, e.g. with the position reported by the relay.
func (s *Subscription) SetOffset(offset uint64) {
	s.mu.Lock()
	s.offset = offset
	s.mu.Unlock()
}

func (s *Subscription) Epoch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Subscription) SetEpoch(epoch string) {
	s.mu.Lock()
	s.epoch = epoch
	s.mu.Unlock()
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsSynced reports whether the relay has confirmed the subscription on the current connection.
func (s *Subscription) IsSynced() bool {
	return s.State() == StateSynced
}

// IsDisposed reports whether Dispose or Detach has run.
func (s *Subscription) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Subscribe asks the relay for the channel and blocks until it confirms or fails.
func (s *Subscription) Subscribe(ctx context.Context) error {
	if s.IsDisposed() {
		return ErrDisposed
	}

	prev := s.State()
	if prev == StateSynced {
		err := &AlreadySubscribedError{Channel: s.Channel()}
		s.raiseError(err.Error())
		return err
	}
	s.transition(StateSubscribing)

	err := s.wf.Subscribe(ctx, s)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrAlreadySubscribed) {
		// Only undo our own Subscribing mark; recovery may have moved the state since.
		s.transitionFrom(StateSubscribing, prev)
		s.raiseError(err.Error())
		return err
	}

	s.Fail(fmt.Sprintf("subscription failed: %v", err))
	return err
}

// Unsubscribe releases the channel. Unsubscribing a channel that was never confirmed only
// drops the local registration.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	if s.IsDisposed() {
		return ErrDisposed
	}

	if err := s.wf.Unsubscribe(ctx, s); err != nil {
		s.raiseError(fmt.Sprintf("unsubscribe failed: %v", err))
		return err
	}
	return nil
}

// Dispose unsubscribes and releases handlers and the token provider. Safe to call more
// than once.
func (s *Subscription) Dispose(ctx context.Context) error {
	if !s.markDisposed() {
		return nil
	}
	err := s.wf.Unsubscribe(ctx, s)
	s.release()
	return err
}

// Detach is Dispose without the network round trip: the Subscription is only removed from
// the repository.
func (s *Subscription) Detach() {
	if !s.markDisposed() {
		return
	}
	s.wf.Detach(s)
	s.release()
}

// RetrieveToken asks the provider for a token and binds the channel on first use.
func (s *Subscription) RetrieveToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	provider := s.tokens
	hint := s.channel
	s.mu.Unlock()

	if provider == nil {
		return "", ErrDisposed
	}

	ct, err := provider.Token(ctx, hint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenRetrievalFailed, err)
	}
	if ct.Channel == "" {
		return "", ErrEmptyChannel
	}
	if ct.Token == "" {
		return "", ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != "" && s.channel != ct.Channel {
		return "", &ChannelChangedError{Bound: s.channel, Requested: ct.Channel}
	}
	s.channel = ct.Channel
	return ct.Token, nil
}

// OnMessageReceived delivers a publication batch, a single pushed payload, or the raw
// fallback body. Offsets advance even when a handler panics.
func (s *Subscription) OnMessageReceived(reply *protocol.Reply) {
	if reply == nil {
		return
	}
	if reply.HasError() {
		s.logger.Error("channel error reply",
			"channel", s.Channel(),
			"error", reply.Err(),
		)
		s.raiseError(reply.Error.Message)
		return
	}

	res := reply.Result
	if res == nil {
		return
	}

	switch {
	case len(res.Publications) > 0:
		for _, pub := range res.Publications {
			s.deliver(pub.Data)
			s.advanceTo(pub.Offset)
		}
	case res.Data != nil && res.Data.Data.Payload != nil:
		s.deliver(res.Data.Data)
		s.mu.Lock()
		s.offset++
		s.mu.Unlock()
	case res.Data != nil && !res.Data.Data.IsZero():
		s.deliver(res.Data.Data)
	default:
		s.logger.Debug("empty publication", "channel", s.Channel())
	}
}

// OnKickReceived handles a server-initiated unsubscribe. The caller removes the
// subscription from the repository.
func (s *Subscription) OnKickReceived() {
	s.transition(StateUnsubscribed)

	s.mu.Lock()
	handlers := append([]func(){}, s.onKick...)
	s.mu.Unlock()
	for _, fn := range handlers {
		s.emit("kick", fn)
	}
}

// OnConnectivityChange marks the subscription synced or unsynced with the connection.
func (s *Subscription) OnConnectivityChange(connected bool) {
	if connected {
		s.transition(StateSynced)
		return
	}

	s.mu.Lock()
	if s.state != StateSynced && s.state != StateSubscribing {
		s.mu.Unlock()
		return
	}
	s.applyLocked(StateUnsynced)
}

// OnUnsubscriptionComplete is called by the repository after removal.
func (s *Subscription) OnUnsubscriptionComplete() {
	s.transition(StateUnsubscribed)
}

// Fail moves the subscription to the error state and raises the error notification.
func (s *Subscription) Fail(reason string) {
	s.logger.Warn("subscription error", "channel", s.Channel(), "reason", reason)
	s.transition(StateError)
	s.raiseError(reason)
}

func (s *Subscription) OnMessage(fn func(text string)) {
	s.mu.Lock()
	s.onMessage = append(s.onMessage, fn)
	s.mu.Unlock()
}

func (s *Subscription) OnBinaryMessage(fn func(data []byte)) {
	s.mu.Lock()
	s.onBinary = append(s.onBinary, fn)
	s.mu.Unlock()
}

func (s *Subscription) OnKick(fn func()) {
	s.mu.Lock()
	s.onKick = append(s.onKick, fn)
	s.mu.Unlock()
}

func (s *Subscription) OnStateChange(fn func(State)) {
	s.mu.Lock()
	s.onState = append(s.onState, fn)
	s.mu.Unlock()
}

func (s *Subscription) OnError(fn func(reason string)) {
	s.mu.Lock()
	s.onError = append(s.onError, fn)
	s.mu.Unlock()
}

// transition applies next and notifies state handlers when it differs from the current state.
func (s *Subscription) transition(next State) {
	s.mu.Lock()
	s.applyLocked(next)
}

// transitionFrom applies next only while the state is still from.
func (s *Subscription) transitionFrom(from, next State) {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return
	}
	s.applyLocked(next)
}

// applyLocked is entered with s.mu held and releases it before notifying.
func (s *Subscription) applyLocked(next State) {
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	handlers := append([]func(State){}, s.onState...)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn := fn
		s.emit("state", func() { fn(next) })
	}
}

func (s *Subscription) advanceTo(offset uint64) {
	s.mu.Lock()
	if offset > s.offset {
		s.offset = offset
	}
	s.mu.Unlock()
}

func (s *Subscription) deliver(data protocol.Data) {
	s.mu.Lock()
	text := append([]func(string){}, s.onMessage...)
	binary := append([]func([]byte){}, s.onBinary...)
	s.mu.Unlock()

	for _, fn := range text {
		fn := fn
		s.emit("message", func() { fn(data.Text()) })
	}
	for _, fn := range binary {
		fn := fn
		s.emit("binary message", func() { fn(data.Bytes()) })
	}
}

func (s *Subscription) raiseError(reason string) {
	s.mu.Lock()
	handlers := append([]func(string){}, s.onError...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn := fn
		s.emit("error", func() { fn(reason) })
	}
}

// emit runs fn through the notifier when there is one, recovering handler panics.
func (s *Subscription) emit(kind string, fn func()) {
	call := func() { s.safeCall(kind, fn) }
	if s.notifier != nil {
		s.notifier.Notify(call)
		return
	}
	call()
}

func (s *Subscription) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked",
				"channel", s.Channel(),
				"handler", kind,
				"panic", r,
			)
		}
	}()
	fn()
}

func (s *Subscription) markDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return false
	}
	s.disposed = true
	return true
}

func (s *Subscription) release() {
	s.mu.Lock()
	s.tokens = nil
	s.onMessage = nil
	s.onBinary = nil
	s.onKick = nil
	s.onState = nil
	s.onError = nil
	s.mu.Unlock()
}

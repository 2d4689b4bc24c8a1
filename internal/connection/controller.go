package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/rickgao/wire/internal/metrics"
	"github.com/rickgao/wire/internal/protocol"
	"github.com/rickgao/wire/internal/subscription"
	"github.com/rickgao/wire/internal/token"
	"github.com/rickgao/wire/internal/version"
)

const taskBufferSize = 256

// Controller owns one logical connection to the relay and the subscriptions multiplexed
// over it.
type Controller struct {
	cfg       ControllerConfig
	logger    *slog.Logger
	transport Transport
	codec     protocol.Codec
	metrics   metrics.Sink
	clock     clock.Clock
	backoff   *Backoff
	commands  *Correlator
	subs      *subscription.Repository
	sessionID string
	connToken func(ctx context.Context) (string, error)

	direct atomic.Bool
	state  atomic.Int32 // mirror of the dispatch-owned state for readers

	tasks    chan func()
	started  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	wg       sync.WaitGroup

	listenMu  sync.Mutex
	listeners []func(State)
	events    *eventQueue

	// Dispatch goroutine only.
	current         State
	wantConnected   bool
	generation      uint64
	connecting      *future
	disconnecting   *future
	heartbeat       context.CancelFunc
	heartbeatStarts int
	onConnected     []func()
	directChannel   string
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to metrics.Nop.
func WithMetrics(sink metrics.Sink) Option {
	return func(c *Controller) {
		if sink != nil {
			c.metrics = sink
		}
	}
}

// WithCodec sets the wire codec. Defaults to JSON.
func WithCodec(codec protocol.Codec) Option {
	return func(c *Controller) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithClock sets the clock driving the heartbeat and reconnect delays.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithBackoff replaces the reconnect backoff built from the config.
func WithBackoff(b *Backoff) Option {
	return func(c *Controller) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithConnectionToken fetches the CONNECT token on every handshake instead of using
// ControllerConfig.Token.
func WithConnectionToken(fn func(ctx context.Context) (string, error)) Option {
	return func(c *Controller) {
		c.connToken = fn
	}
}

// NewController creates a controller over transport. Call Start before use.
func NewController(cfg ControllerConfig, transport Transport, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		logger:    slog.Default(),
		transport: transport,
		codec:     protocol.JSONCodec{},
		metrics:   metrics.Nop{},
		clock:     clock.New(),
		sessionID: uuid.NewString(),
		tasks:     make(chan func(), taskBufferSize),
		loopDone:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.backoff == nil {
		c.backoff = NewBackoff(cfg.ReconnectBaseWait, cfg.ReconnectMaxWait, cfg.ReconnectMultiplier)
		c.backoff.SetJitter(RandomJitter)
	}
	if c.cfg.Name == "" {
		c.cfg.Name = version.Name
	}
	if c.cfg.Version == "" {
		c.cfg.Version = version.Version
	}

	c.logger = c.logger.With("session_id", c.sessionID)
	c.events = newEventQueue(c.logger)
	c.commands = NewCorrelator(c.logger, c.clock)
	c.subs = subscription.NewRepository(c.logger)
	c.subs.OnCountChanged(c.metrics.SubscriptionCount)
	c.direct.Store(cfg.Direct)

	return c
}

// Start launches the dispatch goroutine.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("start controller: %w", ErrUnexpectedInternalState)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()
	go c.events.run()

	c.logger.Info("connection controller started",
		"name", c.cfg.Name,
		"version", c.cfg.Version,
		"codec", c.codec.Name(),
	)
	return nil
}

// Stop disconnects, detaches every subscription and waits for background goroutines.
func (c *Controller) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	c.logger.Info("stopping connection controller")

	if err := c.Disconnect(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
		c.logger.Warn("disconnect during stop failed", "error", err)
	}
	for _, sub := range c.subs.All() {
		sub.Detach()
	}

	c.cancel()

	// The loop may have exited with the parent context before Disconnect could run.
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("transport close after stop", "error", err)
	}

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("shutdown timeout, abandoning background goroutines")
		return ctx.Err()
	}

	// Flush notifications queued before the loop exited.
	c.events.close()
	select {
	case <-c.events.done:
	case <-ctx.Done():
		c.logger.Warn("shutdown timeout, abandoning pending notifications")
		return ctx.Err()
	}

	c.logger.Info("connection controller stopped")
	return nil
}

// State returns the current connection state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// SessionID identifies this controller in logs and archived data.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Repository exposes the subscription registry, e.g. for enumeration.
func (c *Controller) Repository() *subscription.Repository {
	return c.subs
}

// Stats returns a point-in-time view of the controller.
func (c *Controller) Stats() Stats {
	return Stats{
		SessionID:       c.sessionID,
		State:           c.State(),
		Subscriptions:   c.subs.Len(),
		Handles:         len(c.subs.Handles()),
		PendingCommands: c.commands.Pending(),
		OldestCommand:   c.commands.OldestPending(),
	}
}

// OnStateChange registers fn for connection state transitions. Handlers run in order on the
// event goroutine and may call back into the Controller, except for Stop.
func (c *Controller) OnStateChange(fn func(State)) {
	c.listenMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenMu.Unlock()
}

// OnConnected registers fn to run once, on the event goroutine, after the next transition
// to Connected.
func (c *Controller) OnConnected(ctx context.Context, fn func()) error {
	return c.call(ctx, func() {
		c.onConnected = append(c.onConnected, fn)
	})
}

// SetDirect toggles direct mode: subscriptions the server already holds for this client are
// adopted without a SUBSCRIBE round trip.
func (c *Controller) SetDirect(enabled bool) {
	c.direct.Store(enabled)
}

// CreateChannel returns a new, unsubscribed channel bound to this controller.
func (c *Controller) CreateChannel(tokens token.Provider) *subscription.Subscription {
	return subscription.New(tokens, c, c.logger.With("component", "subscription"))
}

// Connect establishes the connection, or joins an attempt already in progress.
func (c *Controller) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

// connect coalesces concurrent callers. auto marks a reconnect attempt, which is dropped
// when the controller no longer wants to be connected.
func (c *Controller) connect(ctx context.Context, auto bool) error {
	for {
		var (
			wait     *future
			final    bool
			finished bool
		)
		err := c.call(ctx, func() {
			if auto && !c.wantConnected {
				finished = true
				return
			}
			c.wantConnected = true

			switch c.current {
			case StateConnected:
				finished = true
			case StateDisconnecting:
				wait = c.disconnecting
			case StateConnecting:
				wait, final = c.connecting, true
			case StateDisconnected:
				c.openTransport()
				wait, final = c.connecting, true
			}
		})
		if err != nil {
			return err
		}
		if finished {
			return nil
		}

		err = c.await(ctx, wait)
		if final {
			return err
		}
		// A disconnect finished; evaluate again.
	}
}

// Disconnect closes the connection and disables automatic reconnects.
func (c *Controller) Disconnect(ctx context.Context) error {
	var wait *future
	err := c.call(ctx, func() {
		c.wantConnected = false

		switch c.current {
		case StateDisconnected:
		case StateDisconnecting:
			wait = c.disconnecting
		default:
			c.setState(StateDisconnecting)
			wait = c.disconnecting
			if err := c.transport.Close(); err != nil {
				c.logger.Warn("transport close failed", "error", err)
			}
		}
	})
	if err != nil || wait == nil {
		return err
	}
	return c.await(ctx, wait)
}

// Reset disconnects, drops pending commands and every subscription, then reconnects when
// reconnect is set.
func (c *Controller) Reset(ctx context.Context, reconnect bool) error {
	if err := c.Disconnect(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	if err := c.call(ctx, func() {
		c.commands.Clear()
		c.subs.Clear()
		c.directChannel = ""
	}); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	if reconnect {
		return c.Connect(ctx)
	}
	return nil
}

// openTransport starts a new transport attempt. Dispatch goroutine only.
func (c *Controller) openTransport() {
	c.generation++
	c.setState(StateConnecting)

	gen := c.generation
	if err := c.transport.Connect(c.ctx, &sessionHandler{c: c, gen: gen}); err != nil {
		c.logger.Error("transport connect failed", "error", err)
		c.connecting.resolve(&ConnectionFailedError{Code: CloseAbnormal, Err: err})
		c.setState(StateDisconnected)
	}
}

// setState applies a transition. Entering Connected fails if a heartbeat is already
// registered. Dispatch goroutine only.
func (c *Controller) setState(next State) error {
	if c.current == next {
		return nil
	}

	switch next {
	case StateConnecting:
		c.connecting = newFuture()
	case StateConnected:
		if err := c.startHeartbeat(); err != nil {
			return err
		}
	case StateDisconnecting:
		c.disconnecting = newFuture()
	case StateDisconnected:
		c.stopHeartbeat()
		c.subs.OnSocketClosed()
	}

	prev := c.current
	c.current = next
	c.state.Store(int32(next))
	c.metrics.StateChanged(next.String())

	c.logger.Info("connection state changed", "from", prev, "to", next)

	c.listenMu.Lock()
	listeners := append([]func(State){}, c.listeners...)
	c.listenMu.Unlock()
	for _, fn := range listeners {
		fn := fn
		c.Notify(func() { fn(next) })
	}

	if next == StateConnected {
		c.connecting.resolve(nil)

		callbacks := c.onConnected
		c.onConnected = nil
		for _, fn := range callbacks {
			c.Notify(fn)
		}
	}
	return nil
}

// run is the dispatch loop.
func (c *Controller) run() {
	defer c.wg.Done()
	defer close(c.loopDone)

	for {
		select {
		case <-c.ctx.Done():
			return
		case fn := <-c.tasks:
			fn()
		}
	}
}

// post queues fn on the dispatch goroutine.
func (c *Controller) post(fn func()) bool {
	if !c.started.Load() {
		return false
	}
	select {
	case c.tasks <- fn:
		return true
	case <-c.loopDone:
		return false
	}
}

// call runs fn on the dispatch goroutine and waits for it to finish.
func (c *Controller) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrNotStarted
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.loopDone:
		return ErrNotStarted
	}
}

func (c *Controller) await(ctx context.Context, f *future) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.loopDone:
		return ErrNotStarted
	}
}

// future is resolved once on the dispatch goroutine and awaited anywhere.
type future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(err error) {
	if f == nil {
		return
	}
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// sessionHandler forwards transport events of one attempt to the dispatch goroutine.
type sessionHandler struct {
	c   *Controller
	gen uint64
}

func (h *sessionHandler) OnOpen() {
	h.c.post(func() { h.c.handleOpen(h.gen) })
}

func (h *sessionHandler) OnMessage(data []byte) {
	h.c.post(func() { h.c.handleMessage(h.gen, data) })
}

func (h *sessionHandler) OnError(err error) {
	h.c.post(func() { h.c.handleError(h.gen, err) })
}

func (h *sessionHandler) OnClose(code CloseCode) {
	h.c.post(func() { h.c.handleClose(h.gen, code) })
}

// sendCommand encodes and sends a command and waits for its reply.
func (c *Controller) sendCommand(ctx context.Context, method protocol.Method, params any) (*protocol.Reply, error) {
	id := c.commands.NextID()
	frame, err := c.codec.Encode(&protocol.Command{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	if err := c.commands.Register(id, method); err != nil {
		return nil, err
	}

	if c.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CommandTimeout)
		defer cancel()
	}

	start := c.clock.Now()
	reply, err := c.commands.SendAndWait(ctx, id, frame, c.transport.Send)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s command %d: %w", method, id, ErrTimeout)
	}
	c.metrics.CommandCompleted(method.String(), err == nil && !reply.HasError(), c.clock.Since(start))

	return reply, err
}

func (c *Controller) reconnectDelay(code CloseCode) time.Duration {
	if code == CloseTokenVerificationFailed {
		return c.cfg.TokenVerificationDelay
	}
	return c.backoff.Next()
}

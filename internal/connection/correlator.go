package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rickgao/wire/internal/protocol"
)

// Correlator assigns command ids and matches replies to waiting callers.
type Correlator struct {
	logger *slog.Logger
	clock  clock.Clock
	nextID atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]*pendingCommand
}

type pendingCommand struct {
	method   protocol.Method
	issuedAt time.Time
	result   chan commandResult
}

type commandResult struct {
	reply *protocol.Reply
	err   error
}

// NewCorrelator creates an empty correlator. A nil clk uses the wall clock.
func NewCorrelator(logger *slog.Logger, clk clock.Clock) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Correlator{
		logger:  logger,
		clock:   clk,
		pending: make(map[uint32]*pendingCommand),
	}
}

// NextID returns the next command id. Zero is never returned.
func (c *Correlator) NextID() uint32 {
	for {
		if id := c.nextID.Add(1); id != 0 {
			return id
		}
	}
}

// Register reserves a pending slot for id.
func (c *Correlator) Register(id uint32, method protocol.Method) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[id]; ok {
		return fmt.Errorf("register command %d: duplicate id: %w", id, ErrUnexpectedInternalState)
	}
	c.pending[id] = &pendingCommand{
		method:   method,
		issuedAt: c.clock.Now(),
		result:   make(chan commandResult, 1),
	}
	return nil
}

// SendAndWait writes frame with send and blocks until the reply for id arrives, the
// connection drops, or ctx ends. The slot is released on return.
func (c *Correlator) SendAndWait(ctx context.Context, id uint32, frame []byte, send func([]byte) error) (*protocol.Reply, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("send command %d: not registered: %w", id, ErrUnexpectedInternalState)
	}
	defer c.forget(id)

	if err := send(frame); err != nil {
		return nil, fmt.Errorf("send %s command %d: %w", p.method, id, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-p.result:
		return r.reply, r.err
	}
}

// OnReply resolves the pending command matching reply.ID.
func (c *Correlator) OnReply(reply *protocol.Reply) {
	c.mu.Lock()
	p, ok := c.pending[reply.ID]
	if ok {
		delete(c.pending, reply.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("reply for unknown command", "id", reply.ID)
		return
	}

	c.logger.Debug("command completed",
		"id", reply.ID,
		"method", p.method,
		"elapsed", c.clock.Since(p.issuedAt),
	)
	p.result <- commandResult{reply: reply}
}

// OnDisconnect fails every pending command with err.
func (c *Correlator) OnDisconnect(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*pendingCommand)
	c.mu.Unlock()

	for _, p := range pending {
		p.result <- commandResult{err: err}
	}
	if len(pending) > 0 {
		c.logger.Debug("interrupted pending commands", "count", len(pending), "error", err)
	}
}

// Clear drops every pending slot without resolving it.
func (c *Correlator) Clear() {
	c.mu.Lock()
	c.pending = make(map[uint32]*pendingCommand)
	c.mu.Unlock()
}

// Pending returns the number of commands awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// OldestPending returns how long the oldest unanswered command has been waiting.
func (c *Correlator) OldestPending() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest time.Duration
	now := c.clock.Now()
	for _, p := range c.pending {
		if age := now.Sub(p.issuedAt); age > oldest {
			oldest = age
		}
	}
	return oldest
}

func (c *Correlator) forget(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

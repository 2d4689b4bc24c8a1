package connection

import (
	"log/slog"

	"github.com/rickgao/wire/internal/router"
)

const eventBufferSize = 64

// eventQueue runs consumer callbacks in order on one goroutine so handlers may call back
// into the Controller without stalling the dispatch goroutine.
type eventQueue struct {
	logger *slog.Logger
	buf    *router.GrowableBuffer[func()]
	done   chan struct{}
}

func newEventQueue(logger *slog.Logger) *eventQueue {
	return &eventQueue{
		logger: logger,
		buf:    router.NewGrowableBuffer[func()](eventBufferSize),
		done:   make(chan struct{}),
	}
}

// push queues fn. It returns false once the queue is closed.
func (q *eventQueue) push(fn func()) bool {
	return q.buf.Send(fn)
}

// run delivers queued callbacks until the queue is closed and drained.
func (q *eventQueue) run() {
	defer close(q.done)
	for {
		fn, ok := q.buf.Receive()
		if !ok {
			return
		}
		q.invoke(fn)
	}
}

func (q *eventQueue) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("event handler panicked", "panic", r)
		}
	}()
	fn()
}

func (q *eventQueue) close() {
	q.buf.Close()
}

// Notify runs fn on the event goroutine after every previously queued notification.
// Before Start and after Stop fn runs on the caller's goroutine.
func (c *Controller) Notify(fn func()) {
	if !c.started.Load() || !c.events.push(fn) {
		c.events.invoke(fn)
	}
}

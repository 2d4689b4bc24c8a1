package connection

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rickgao/wire/internal/protocol"
)

// sentCommand is a command captured by fakeTransport.
type sentCommand struct {
	ID     uint32          `json:"id"`
	Method protocol.Method `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s sentCommand) subscribe() protocol.SubscribeRequest {
	var req protocol.SubscribeRequest
	_ = json.Unmarshal(s.Params, &req)
	return req
}

func (s sentCommand) connect() protocol.ConnectRequest {
	var req protocol.ConnectRequest
	_ = json.Unmarshal(s.Params, &req)
	return req
}

// fakeTransport is an in-memory relay. Handler events are delivered in order from a single
// pump goroutine and commands are answered automatically.
type fakeTransport struct {
	codec  protocol.JSONCodec
	events chan func()

	mu               sync.Mutex
	h                TransportHandler
	open             bool
	connects         int
	closes           int
	sent             []sentCommand
	failConnect      error
	silent           map[protocol.Method]bool
	fail             map[protocol.Method]*protocol.Error
	connectSubs      map[string]protocol.SubscribeResult
	subscribeResults map[string]*protocol.Result
	holdClose        bool
	heldClose        []func()
}

func newFakeTransport() *fakeTransport {
	f := &fakeTransport{
		events:           make(chan func(), 1024),
		silent:           make(map[protocol.Method]bool),
		fail:             make(map[protocol.Method]*protocol.Error),
		subscribeResults: make(map[string]*protocol.Result),
	}
	go func() {
		for fn := range f.events {
			fn()
		}
	}()
	return f
}

func (f *fakeTransport) Connect(_ context.Context, h TransportHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failConnect != nil {
		return f.failConnect
	}
	f.h = h
	f.open = true
	f.connects++
	f.events <- h.OnOpen
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	var cmd sentCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return ErrNotConnected
	}
	f.sent = append(f.sent, cmd)

	reply := f.replyTo(cmd)
	if reply == nil {
		return nil
	}
	f.deliver(reply)
	return nil
}

func (f *fakeTransport) Close() error {
	f.drop(CloseNormal)
	return nil
}

// drop closes the session as if the relay sent code.
func (f *fakeTransport) drop(code CloseCode) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return
	}
	f.open = false
	f.closes++
	h := f.h
	ev := func() { h.OnClose(code) }
	if f.holdClose {
		f.heldClose = append(f.heldClose, ev)
		return
	}
	f.events <- ev
}

// releaseClose delivers close events held back by holdClose and stops holding.
func (f *fakeTransport) releaseClose() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.holdClose = false
	for _, ev := range f.heldClose {
		f.events <- ev
	}
	f.heldClose = nil
}

// push delivers an unsolicited frame on the live session.
func (f *fakeTransport) push(reply *protocol.Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliver(reply)
}

func (f *fakeTransport) deliver(reply *protocol.Reply) {
	data, err := f.codec.EncodeReply(reply)
	if err != nil {
		panic(err)
	}
	h := f.h
	f.events <- func() { h.OnMessage(data) }
}

func (f *fakeTransport) replyTo(cmd sentCommand) *protocol.Reply {
	if f.silent[cmd.Method] {
		return nil
	}
	if relayErr, ok := f.fail[cmd.Method]; ok {
		return &protocol.Reply{ID: cmd.ID, Error: relayErr}
	}

	switch cmd.Method {
	case protocol.MethodConnect:
		return &protocol.Reply{ID: cmd.ID, Result: &protocol.Result{
			Client:  "client-1",
			Version: "test",
			Ping:    25,
			Subs:    f.connectSubs,
		}}
	case protocol.MethodSubscribe:
		if res, ok := f.subscribeResults[cmd.subscribe().Channel]; ok {
			return &protocol.Reply{ID: cmd.ID, Result: res}
		}
		return &protocol.Reply{ID: cmd.ID, Result: &protocol.Result{}}
	default:
		return &protocol.Reply{ID: cmd.ID, Result: &protocol.Result{}}
	}
}

func (f *fakeTransport) commands(method protocol.Method) []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCommand
	for _, cmd := range f.sent {
		if cmd.Method == method {
			out = append(out, cmd)
		}
	}
	return out
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) configure(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

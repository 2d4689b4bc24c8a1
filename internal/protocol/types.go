package protocol

import (
	"fmt"
)

// Method identifies a client command.
type Method int

const (
	MethodConnect Method = iota
	MethodSubscribe
	MethodUnsubscribe
	MethodPublish
	MethodPresence
	MethodPresenceStats
	MethodHistory
	MethodPing
	MethodSend
	MethodRPC
	MethodRefresh
	MethodSubRefresh
)

var methodNames = [...]string{
	"connect",
	"subscribe",
	"unsubscribe",
	"publish",
	"presence",
	"presence_stats",
	"history",
	"ping",
	"send",
	"rpc",
	"refresh",
	"sub_refresh",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// PushType tags an unsolicited server message. Zero is an ordinary publication.
type PushType int

const (
	PushPublication PushType = iota
	PushJoin
	PushLeave
	PushUnsubscribe
	PushMessage
	PushSubscribe
)

func (p PushType) String() string {
	switch p {
	case PushPublication:
		return "publication"
	case PushJoin:
		return "join"
	case PushLeave:
		return "leave"
	case PushUnsubscribe:
		return "unsubscribe"
	case PushMessage:
		return "message"
	case PushSubscribe:
		return "subscribe"
	default:
		return fmt.Sprintf("push(%d)", int(p))
	}
}

// Command is an outbound client command.
type Command struct {
	ID     uint32 `json:"id"`
	Method Method `json:"method,omitempty"`
	Params any    `json:"params,omitempty"`
}

// ConnectRequest is sent once after the transport opens. Subs lists the channels the
// client already tracks so the server can recover them in the same round trip.
type ConnectRequest struct {
	Token   string                      `json:"token,omitempty"`
	Name    string                      `json:"name,omitempty"`
	Version string                      `json:"version,omitempty"`
	Subs    map[string]SubscribeRequest `json:"subs,omitempty"`
}

// SubscribeRequest asks the server for a channel subscription. When Recover is set the
// server replays publications after Offset within Epoch.
type SubscribeRequest struct {
	Channel string `json:"channel,omitempty"`
	Token   string `json:"token,omitempty"`
	Recover bool   `json:"recover,omitempty"`
	Offset  uint64 `json:"offset,omitempty"`
	Epoch   string `json:"epoch,omitempty"`
}

// UnsubscribeRequest releases a channel subscription.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// PingRequest is the keepalive command body.
type PingRequest struct{}

// Error is a server error reply.
type Error struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// Reply is a decoded inbound frame: a command reply when ID > 0, otherwise a push or
// publication.
type Reply struct {
	ID     uint32  `json:"id,omitempty"`
	Error  *Error  `json:"error,omitempty"`
	Result *Result `json:"result,omitempty"`
}

// HasError reports whether the reply carries a non-zero error.
func (r *Reply) HasError() bool {
	return r != nil && r.Error != nil && r.Error.Code != 0
}

// Err returns the reply error, or nil.
func (r *Reply) Err() error {
	if !r.HasError() {
		return nil
	}
	return r.Error
}

// Result is the union of every reply and push body the client understands.
type Result struct {
	// Push and publication fields.
	Type    PushType `json:"type,omitempty"`
	Channel string   `json:"channel,omitempty"`
	Data    *Message `json:"data,omitempty"`

	// Subscribe reply fields.
	Epoch        string        `json:"epoch,omitempty"`
	Offset       uint64        `json:"offset,omitempty"`
	Recoverable  bool          `json:"recoverable,omitempty"`
	Recovered    bool          `json:"recovered,omitempty"`
	Publications []Publication `json:"publications,omitempty"`

	// Connect reply fields.
	Client  string                     `json:"client,omitempty"`
	Version string                     `json:"version,omitempty"`
	Ping    uint32                     `json:"ping,omitempty"`
	Subs    map[string]SubscribeResult `json:"subs,omitempty"`
}

// SubscribeResult is the per-channel recovery payload of a connect reply.
type SubscribeResult struct {
	Epoch        string        `json:"epoch,omitempty"`
	Offset       uint64        `json:"offset,omitempty"`
	Recoverable  bool          `json:"recoverable,omitempty"`
	Recovered    bool          `json:"recovered,omitempty"`
	Publications []Publication `json:"publications,omitempty"`
}

// Message is the body of a push or single publication.
type Message struct {
	Offset uint64 `json:"offset,omitempty"`
	Data   Data   `json:"data"`
}

// Publication is one channel data item tagged with its stream offset.
type Publication struct {
	Offset uint64 `json:"offset"`
	Data   Data   `json:"data"`
}

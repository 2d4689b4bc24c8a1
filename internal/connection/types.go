package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected            = errors.New("not connected")
	ErrTimeout                 = errors.New("operation timeout")
	ErrNotStarted              = errors.New("controller not running")
	ErrTransportBusy           = errors.New("transport connect already in progress")
	ErrConnectionFailed        = errors.New("connection failed")
	ErrCommandInterrupted      = errors.New("command interrupted")
	ErrUnexpectedInternalState = errors.New("unexpected internal state")
	ErrUnknownChannel          = errors.New("publication for unknown channel")
	ErrNoChannel               = errors.New("publication without channel")
)

// ConnectionFailedError is returned to Connect callers when the transport or the handshake
// fails. Code is set when the failure was a transport close.
type ConnectionFailedError struct {
	Code CloseCode
	Err  error
}

func (e *ConnectionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return fmt.Sprintf("connection failed: transport closed (%s)", e.Code)
}

func (e *ConnectionFailedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConnectionFailed, e.Err}
	}
	return []error{ErrConnectionFailed}
}

// CommandInterruptedError fails commands that were in flight when the transport closed.
type CommandInterruptedError struct {
	Code CloseCode
}

func (e *CommandInterruptedError) Error() string {
	return fmt.Sprintf("command interrupted: connection closed (%s)", e.Code)
}

func (e *CommandInterruptedError) Unwrap() error {
	return ErrCommandInterrupted
}

// State is the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CloseCode is a websocket or relay close status.
type CloseCode int

// Websocket close codes (RFC 6455).
const (
	CloseNormal             CloseCode = 1000
	CloseGoingAway          CloseCode = 1001
	CloseProtocolError      CloseCode = 1002
	CloseUnsupportedData    CloseCode = 1003
	CloseNoStatus           CloseCode = 1005
	CloseAbnormal           CloseCode = 1006
	CloseInvalidPayload     CloseCode = 1007
	ClosePolicyViolation    CloseCode = 1008
	CloseMessageTooBig      CloseCode = 1009
	CloseMandatoryExtension CloseCode = 1010
	CloseInternalError      CloseCode = 1011
	CloseServiceRestart     CloseCode = 1012
	CloseTryAgainLater      CloseCode = 1013
	CloseBadGateway         CloseCode = 1014
	CloseTLSHandshake       CloseCode = 1015
)

// Relay close codes.
const (
	CloseRelayNormal             CloseCode = 3000
	CloseShutdown                CloseCode = 3001
	CloseInvalidToken            CloseCode = 3002
	CloseBadRequest              CloseCode = 3003
	CloseRelayInternal           CloseCode = 3004
	CloseExpired                 CloseCode = 3005
	CloseSubscriptionExpired     CloseCode = 3006
	CloseStale                   CloseCode = 3007
	CloseSlow                    CloseCode = 3008
	CloseWriteError              CloseCode = 3009
	CloseInsufficientState       CloseCode = 3010
	CloseForceReconnect          CloseCode = 3011
	CloseForceNoReconnect        CloseCode = 3012
	CloseConnectionLimit         CloseCode = 3013
	CloseChannelLimit            CloseCode = 3014
	CloseTokenVerificationFailed CloseCode = 4333
)

var closeCodeNames = map[CloseCode]string{
	CloseNormal:                  "normal",
	CloseGoingAway:               "going away",
	CloseProtocolError:           "protocol error",
	CloseUnsupportedData:         "unsupported data",
	CloseNoStatus:                "no status",
	CloseAbnormal:                "abnormal",
	CloseInvalidPayload:          "invalid payload",
	ClosePolicyViolation:         "policy violation",
	CloseMessageTooBig:           "message too big",
	CloseMandatoryExtension:      "mandatory extension",
	CloseInternalError:           "internal error",
	CloseServiceRestart:          "service restart",
	CloseTryAgainLater:           "try again later",
	CloseBadGateway:              "bad gateway",
	CloseTLSHandshake:            "tls handshake",
	CloseRelayNormal:             "relay normal",
	CloseShutdown:                "shutdown",
	CloseInvalidToken:            "invalid token",
	CloseBadRequest:              "bad request",
	CloseRelayInternal:           "relay internal error",
	CloseExpired:                 "expired",
	CloseSubscriptionExpired:     "subscription expired",
	CloseStale:                   "stale",
	CloseSlow:                    "slow",
	CloseWriteError:              "write error",
	CloseInsufficientState:       "insufficient state",
	CloseForceReconnect:          "force reconnect",
	CloseForceNoReconnect:        "force no reconnect",
	CloseConnectionLimit:         "connection limit",
	CloseChannelLimit:            "channel limit",
	CloseTokenVerificationFailed: "token verification failed",
}

func (c CloseCode) String() string {
	if name, ok := closeCodeNames[c]; ok {
		return fmt.Sprintf("%d %s", int(c), name)
	}
	return fmt.Sprintf("%d", int(c))
}

// ShouldReconnect reports whether the controller may reconnect automatically after the
// transport closed with c.
func (c CloseCode) ShouldReconnect() bool {
	switch c {
	case CloseUnsupportedData, CloseMandatoryExtension, CloseInvalidToken, CloseForceNoReconnect:
		return false
	default:
		return true
	}
}

// TransportConfig configures a WebsocketTransport.
type TransportConfig struct {
	URL              string        // ws:// or wss:// relay endpoint
	HandshakeTimeout time.Duration // Websocket upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends
	Binary           bool          // Send binary frames (msgpack codec)
	Header           http.Header   // Extra upgrade request headers
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// ControllerConfig configures the Controller.
type ControllerConfig struct {
	Token   string // Connection token for CONNECT (see WithConnectionToken)
	Name    string // Client name reported in CONNECT
	Version string // Client version reported in CONNECT
	Direct  bool   // Adopt server-originated subscriptions without SUBSCRIBE

	PingInterval     time.Duration // Heartbeat period while connected
	HandshakeTimeout time.Duration // Upper bound on the whole CONNECT exchange
	CommandTimeout   time.Duration // Per-command reply timeout

	ReconnectBaseWait   time.Duration
	ReconnectMaxWait    time.Duration
	ReconnectMultiplier float64

	// TokenVerificationDelay replaces the backoff delay after a 4333 close.
	TokenVerificationDelay time.Duration
}

// DefaultControllerConfig returns sensible defaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		PingInterval:           25 * time.Second,
		HandshakeTimeout:       10 * time.Second,
		CommandTimeout:         10 * time.Second,
		ReconnectBaseWait:      1 * time.Second,
		ReconnectMaxWait:       60 * time.Second,
		ReconnectMultiplier:    2,
		TokenVerificationDelay: 10 * time.Second,
	}
}

// Stats is a point-in-time view of the controller.
type Stats struct {
	SessionID       string
	State           State
	Subscriptions   int
	Handles         int
	PendingCommands int
	OldestCommand   time.Duration
}

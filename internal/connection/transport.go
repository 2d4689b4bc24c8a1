package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransportHandler receives transport events. OnClose is delivered exactly once per
// Connect, after any OnOpen and OnMessage calls of that attempt.
type TransportHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code CloseCode)
}

// Transport is a duplex byte stream to the relay.
type Transport interface {
	// Connect starts opening the stream and returns immediately. Progress is reported
	// to h.
	Connect(ctx context.Context, h TransportHandler) error

	// Send writes one message.
	Send(data []byte) error

	// Close requests a close. The handler's OnClose follows asynchronously.
	Close() error
}

// WebsocketTransport is a Transport over a gorilla/websocket connection.
type WebsocketTransport struct {
	cfg    TransportConfig
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	active  bool
	closing bool
	cancel  context.CancelFunc

	// Write serialization
	writeMu sync.Mutex
}

// NewWebsocketTransport creates a transport for cfg.URL.
func NewWebsocketTransport(cfg TransportConfig, logger *slog.Logger) *WebsocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketTransport{
		cfg:    cfg,
		logger: logger,
	}
}

func (t *WebsocketTransport) Connect(ctx context.Context, h TransportHandler) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return ErrTransportBusy
	}
	dialCtx, cancel := context.WithCancel(ctx)
	t.active = true
	t.closing = false
	t.conn = nil
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(dialCtx, h)
	return nil
}

func (t *WebsocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	msgType := websocket.TextMessage
	if t.cfg.Binary {
		msgType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn.WriteMessage(msgType, data)
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	if !t.active || t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()

	if conn == nil {
		// Still dialing; run observes the cancellation.
		cancel()
		return nil
	}

	t.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return conn.Close()
}

func (t *WebsocketTransport) run(ctx context.Context, h TransportHandler) {
	header := http.Header{}
	for k, v := range t.cfg.Header {
		header[k] = v
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		if t.isClosing() {
			t.finish(h, CloseNormal)
			return
		}
		h.OnError(fmt.Errorf("dial %s: %w", t.cfg.URL, err))
		t.finish(h, CloseAbnormal)
		return
	}

	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		t.finish(h, CloseNormal)
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.logger.Debug("websocket connected", "url", t.cfg.URL)
	h.OnOpen()

	code := t.readLoop(conn, h)
	conn.Close()
	t.finish(h, code)
}

// readLoop forwards messages until the connection fails and returns the close code.
func (t *WebsocketTransport) readLoop(conn *websocket.Conn, h TransportHandler) CloseCode {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return CloseCode(closeErr.Code)
			}
			// Ignore errors after Close() is called
			if t.isClosing() {
				return CloseNormal
			}
			h.OnError(fmt.Errorf("read: %w", err))
			return CloseAbnormal
		}
		h.OnMessage(data)
	}
}

func (t *WebsocketTransport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

func (t *WebsocketTransport) finish(h TransportHandler, code CloseCode) {
	t.mu.Lock()
	t.conn = nil
	t.active = false
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()

	t.logger.Debug("websocket closed", "url", t.cfg.URL, "code", code)
	h.OnClose(code)
}

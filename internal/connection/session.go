package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/wire/internal/protocol"
	"github.com/rickgao/wire/internal/subscription"
)

// handleOpen starts the CONNECT handshake for a freshly opened transport.
func (c *Controller) handleOpen(gen uint64) {
	if gen != c.generation || c.current != StateConnecting {
		return
	}

	c.logger.Debug("transport open, starting handshake", "generation", gen)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		reply, err := c.handshake()
		c.post(func() { c.completeHandshake(gen, reply, err) })
	}()
}

// handshake sends CONNECT carrying the recovery position of every registered channel.
func (c *Controller) handshake() (*protocol.Reply, error) {
	ctx := c.ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	req := &protocol.ConnectRequest{
		Token:   c.cfg.Token,
		Name:    c.cfg.Name,
		Version: c.cfg.Version,
	}
	if c.connToken != nil {
		tok, err := c.connToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("connection token: %w", err)
		}
		req.Token = tok
	}

	for _, sub := range c.subs.All() {
		tok, err := sub.RetrieveToken(ctx)
		if err != nil {
			c.logger.Warn("skipping recovery for channel", "channel", sub.Channel(), "error", err)
			continue
		}
		if req.Subs == nil {
			req.Subs = make(map[string]protocol.SubscribeRequest)
		}
		req.Subs[sub.Channel()] = protocol.SubscribeRequest{
			Token:   tok,
			Recover: true,
			Offset:  sub.Offset(),
			Epoch:   sub.Epoch(),
		}
	}

	reply, err := c.sendCommand(ctx, protocol.MethodConnect, req)
	if err != nil {
		return nil, err
	}
	if reply.HasError() {
		return reply, reply.Err()
	}
	return reply, nil
}

// completeHandshake applies the CONNECT outcome. Stale or superseded attempts are ignored.
func (c *Controller) completeHandshake(gen uint64, reply *protocol.Reply, err error) {
	if gen != c.generation || c.current != StateConnecting {
		c.logger.Debug("ignoring stale handshake result", "generation", gen)
		return
	}

	if err != nil {
		c.logger.Error("handshake failed", "error", err)
		c.failConnecting(err)
		return
	}

	c.backoff.Reset()
	if reply.Result != nil {
		c.logger.Info("handshake complete",
			"client", reply.Result.Client,
			"server_version", reply.Result.Version,
			"recovered", len(reply.Result.Subs),
		)
		c.subs.RecoverSubscriptions(reply.Result)
	}

	if err := c.setState(StateConnected); err != nil {
		c.logger.Error("enter connected state", "error", err)
		c.failConnecting(err)
		return
	}

	c.resubscribeUnsynced()
}

func (c *Controller) failConnecting(err error) {
	c.connecting.resolve(&ConnectionFailedError{Err: err})
	if cerr := c.transport.Close(); cerr != nil {
		c.logger.Warn("transport close failed", "error", cerr)
	}
}

// resubscribeUnsynced subscribes registered channels the relay did not recover during
// the handshake.
func (c *Controller) resubscribeUnsynced() {
	var pending []*subscription.Subscription
	for _, sub := range c.subs.All() {
		if !sub.IsSynced() {
			pending = append(pending, sub)
		}
	}
	if len(pending) == 0 {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for _, sub := range pending {
			if err := c.Subscribe(c.ctx, sub); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotStarted) {
					return
				}
				c.logger.Warn("resubscribe failed", "channel", sub.Channel(), "error", err)
				sub.Fail(fmt.Sprintf("resubscribe failed: %v", err))
			}
		}
	}()
}

// handleMessage decodes a transport message and routes each frame.
func (c *Controller) handleMessage(gen uint64, data []byte) {
	if gen != c.generation {
		return
	}
	c.metrics.MessageReceived()

	// Frames split before a malformed tail are still routed.
	frames, err := c.codec.Split(data)
	if err != nil {
		c.logger.Warn("undecodable message", "error", err, "size", len(data), "frames", len(frames))
	}

	for _, frame := range frames {
		reply, err := c.codec.Decode(frame)
		if err != nil {
			c.logger.Warn("undecodable frame", "error", err)
			continue
		}
		c.route(reply)
	}
}

func (c *Controller) route(reply *protocol.Reply) {
	if reply.ID > 0 {
		c.commands.OnReply(reply)
		return
	}

	res := reply.Result
	if res == nil {
		c.logger.Debug("empty push")
		return
	}

	if res.Type != protocol.PushPublication {
		c.metrics.PushReceived(res.Type.String())
	}

	switch res.Type {
	case protocol.PushUnsubscribe:
		sub, ok := c.subs.Get(res.Channel)
		if !ok {
			c.logger.Warn("unsubscribe push for unknown channel", "channel", res.Channel)
			return
		}
		c.logger.Info("subscription kicked by server", "channel", res.Channel)
		sub.OnKickReceived()
		if err := c.subs.Remove(sub); err != nil {
			c.logger.Debug("remove kicked subscription", "channel", res.Channel, "error", err)
		}

	case protocol.PushPublication, protocol.PushMessage:
		sub, err := c.resolve(res.Channel)
		if err != nil {
			c.logger.Warn("dropping publication", "error", err)
			return
		}
		sub.OnMessageReceived(reply)

	default:
		c.logger.Debug("unsupported push", "type", res.Type, "channel", res.Channel)
	}
}

// resolve finds the subscription a publication belongs to: by channel, then the direct
// channel, then the sole registered subscription. Publications without a channel are
// never routed.
func (c *Controller) resolve(channel string) (*subscription.Subscription, error) {
	if channel == "" {
		return nil, ErrNoChannel
	}
	if sub, ok := c.subs.Get(channel); ok {
		return sub, nil
	}
	if c.direct.Load() && c.directChannel != "" {
		if sub, ok := c.subs.Get(c.directChannel); ok {
			return sub, nil
		}
	}
	if all := c.subs.All(); len(all) == 1 {
		c.logger.Warn("routing publication to sole subscription",
			"channel", channel,
			"subscription", all[0].Channel(),
		)
		return all[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
}

func (c *Controller) handleError(gen uint64, err error) {
	if gen != c.generation {
		return
	}
	c.metrics.TransportError()
	c.logger.Warn("transport error", "error", err)
}

// handleClose tears down the session and schedules a reconnect when allowed.
func (c *Controller) handleClose(gen uint64, code CloseCode) {
	if gen != c.generation {
		return
	}

	c.logger.Info("transport closed", "code", code)

	c.setState(StateDisconnected)
	c.commands.OnDisconnect(&CommandInterruptedError{Code: code})
	c.connecting.resolve(&ConnectionFailedError{Code: code})
	c.disconnecting.resolve(nil)

	if !c.wantConnected {
		return
	}
	if !code.ShouldReconnect() {
		c.logger.Warn("not reconnecting", "code", code)
		c.wantConnected = false
		return
	}
	c.scheduleReconnect(c.reconnectDelay(code))
}

func (c *Controller) scheduleReconnect(delay time.Duration) {
	c.logger.Info("reconnecting", "delay", delay)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-c.ctx.Done():
			return
		case <-c.clock.After(delay):
		}
		if err := c.connect(c.ctx, true); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNotStarted) {
			c.logger.Warn("reconnect failed", "error", err)
		}
	}()
}

// startHeartbeat launches the ping loop for the current session. Only one may run.
func (c *Controller) startHeartbeat() error {
	if c.heartbeat != nil {
		return fmt.Errorf("heartbeat already running: %w", ErrUnexpectedInternalState)
	}
	if c.cfg.PingInterval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.heartbeat = cancel
	c.heartbeatStarts++

	gen := c.generation
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.heartbeatLoop(ctx, gen)
	}()
	return nil
}

func (c *Controller) stopHeartbeat() {
	if c.heartbeat != nil {
		c.heartbeat()
		c.heartbeat = nil
	}
}

func (c *Controller) heartbeatLoop(ctx context.Context, gen uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.cfg.PingInterval):
		}

		reply, err := c.sendCommand(ctx, protocol.MethodPing, &protocol.PingRequest{})
		if err == nil {
			err = reply.Err()
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("heartbeat failed, closing transport", "error", err)
		c.post(func() {
			if c.generation == gen && c.current == StateConnected {
				if cerr := c.transport.Close(); cerr != nil {
					c.logger.Warn("transport close failed", "error", cerr)
				}
			}
		})
		return
	}
}

package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/tidwall/gjson"

	"github.com/rickgao/wire/internal/model"
)

// Router stamps channel payloads as publications and hands them to the archive writer.
type Router interface {
	// Start begins routing attached payloads to the output buffer.
	Start(ctx context.Context) error

	// Stop closes the input, drains it and closes the output.
	Stop(ctx context.Context) error

	// Attach forwards every binary payload src delivers.
	Attach(src Source)

	// Output returns the buffer the writer consumes.
	Output() *GrowableBuffer[model.Publication]

	Stats() Stats
}

type router struct {
	cfg       Config
	sessionID string
	logger    *slog.Logger
	clock     clock.Clock

	input  *GrowableBuffer[inbound]
	output *GrowableBuffer[model.Publication]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	received atomic.Int64
	routed   atomic.Int64
	dropped  atomic.Int64
}

// New creates a router for publications received by sessionID.
func New(cfg Config, sessionID string, logger *slog.Logger) Router {
	return newRouter(cfg, sessionID, logger, clock.New())
}

func newRouter(cfg Config, sessionID string, logger *slog.Logger, clk clock.Clock) *router {
	if logger == nil {
		logger = slog.Default()
	}
	return &router{
		cfg:       cfg,
		sessionID: sessionID,
		logger:    logger.With("component", "router"),
		clock:     clk,
		input:     NewGrowableBuffer[inbound](cfg.InputBufferSize),
		output:    NewGrowableBuffer[model.Publication](cfg.OutputBufferSize),
	}
}

func (r *router) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.routeLoop()
	go func() {
		defer r.wg.Done()
		<-ctx.Done()
		r.input.Close()
	}()

	r.logger.Info("publication router started",
		"input_buffer", r.cfg.InputBufferSize,
		"output_buffer", r.cfg.OutputBufferSize,
	)
	return nil
}

func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping publication router")
	if r.cancel != nil {
		r.cancel()
	}
	r.input.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		r.logger.Info("publication router stopped", "routed", r.routed.Load())
	case <-ctx.Done():
		r.logger.Warn("publication router stop timed out", "pending", r.input.Len())
		err = ctx.Err()
	}

	r.output.Close()
	return err
}

func (r *router) Attach(src Source) {
	src.OnBinaryMessage(func(data []byte) {
		// Handlers may reuse data after returning.
		payload := make([]byte, len(data))
		copy(payload, data)

		in := inbound{channel: src.Channel(), payload: payload, at: r.clock.Now().UnixMicro()}
		if !r.input.Send(in) {
			r.dropped.Add(1)
			return
		}
		r.received.Add(1)
	})
}

func (r *router) Output() *GrowableBuffer[model.Publication] {
	return r.output
}

func (r *router) Stats() Stats {
	return Stats{
		Received: r.received.Load(),
		Routed:   r.routed.Load(),
		Dropped:  r.dropped.Load(),
		Input:    r.input.Stats(),
		Output:   r.output.Stats(),
	}
}

func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		in, ok := r.input.Receive()
		if !ok {
			return
		}
		r.route(in)
	}
}

func (r *router) route(in inbound) {
	pub := model.NewPublication(r.sessionID, in.channel, in.payload, time.UnixMicro(in.at))
	pub.Kind = extractKind(in.payload)

	if !r.output.Send(pub) {
		r.dropped.Add(1)
		r.logger.Debug("output closed, dropping publication", "channel", in.channel)
		return
	}
	r.routed.Add(1)
}

// extractKind returns the top-level "type" field of a JSON object payload.
func extractKind(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	kind := gjson.GetBytes(payload, "type")
	if kind.Type != gjson.String {
		return ""
	}
	return kind.Str
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wire/internal/config"
	"github.com/rickgao/wire/internal/connection"
	"github.com/rickgao/wire/internal/database"
	"github.com/rickgao/wire/internal/metrics"
	"github.com/rickgao/wire/internal/protocol"
	"github.com/rickgao/wire/internal/router"
	"github.com/rickgao/wire/internal/subscription"
	"github.com/rickgao/wire/internal/version"
	"github.com/rickgao/wire/internal/writer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/archiver.local.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting archiver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"url", cfg.Client.URL,
		"channels", len(cfg.Client.Channels),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("archiver failed", "error", err)
		os.Exit(1)
	}
	logger.Info("archiver stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sink := metrics.NewPrometheus()

	codec, err := protocol.CodecByName(cfg.Client.Codec)
	if err != nil {
		return err
	}

	tokens, err := newTokenSource(cfg.Token, logger)
	if err != nil {
		return err
	}

	transport := connection.NewWebsocketTransport(connection.TransportConfig{
		URL:              cfg.Client.URL,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		Binary:           codec.Name() == "msgpack",
		Header:           http.Header{"User-Agent": []string{version.UserAgent()}},
	}, logger.With("component", "transport"))

	opts := []connection.Option{
		connection.WithLogger(logger),
		connection.WithMetrics(sink),
		connection.WithCodec(codec),
	}
	if tokens.connection != nil {
		opts = append(opts, connection.WithConnectionToken(tokens.connection))
	}
	ctrl := connection.NewController(connection.ControllerConfig{
		Token:                  cfg.Client.Token,
		Name:                   cfg.Client.Name,
		Direct:                 cfg.Client.Direct,
		PingInterval:           cfg.Connection.PingInterval,
		HandshakeTimeout:       cfg.Connection.HandshakeTimeout,
		CommandTimeout:         cfg.Connection.CommandTimeout,
		ReconnectBaseWait:      cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxWait:       cfg.Connection.ReconnectMaxDelay,
		ReconnectMultiplier:    cfg.Connection.ReconnectMultiplier,
		TokenVerificationDelay: cfg.Connection.TokenVerificationDelay,
	}, transport, opts...)

	deps := healthDeps{controller: ctrl}

	// Archive pipeline: subscriptions -> router -> writer -> database.
	var (
		rt router.Router
		pw *writer.PublicationWriter
	)
	if cfg.Archive.Enabled {
		db := cfg.Archive.Database
		logger.Info("connecting to database", "host", db.Host, "port", db.Port, "database", db.Name)

		pool, err := database.Connect(ctx, db)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}

		rt = router.New(router.Config{
			InputBufferSize:  cfg.Archive.BufferSize,
			OutputBufferSize: cfg.Archive.BufferSize,
		}, ctrl.SessionID(), logger)
		pw = writer.NewPublicationWriter(writer.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, rt.Output(), pool, logger)

		deps.db = pool
		deps.router = rt
		deps.writer = pw
	}

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	if rt != nil {
		if err := rt.Start(ctx); err != nil {
			return err
		}
		if err := pw.Start(ctx); err != nil {
			return err
		}
	}

	ctrl.OnStateChange(func(s connection.State) {
		if s == connection.StateDisconnected && ctx.Err() == nil {
			logger.Warn("relay connection lost")
		}
	})

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(deps, sink.Handler(), cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	for _, channel := range cfg.Client.Channels {
		channel := channel
		sub := ctrl.CreateChannel(tokens.channel(channel))
		watch(sub, channel, logger)
		if rt != nil {
			rt.Attach(sub)
		}

		g.Go(func() error {
			if err := sub.Subscribe(gctx); err != nil && gctx.Err() == nil {
				// One bad channel does not take the others down.
				logger.Error("subscribe failed", "channel", channel, "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := ctrl.Stop(shutdownCtx); err != nil {
			logger.Warn("controller stop", "error", err)
		}
		if rt != nil {
			if err := rt.Stop(shutdownCtx); err != nil {
				logger.Warn("router stop", "error", err)
			}
			if err := pw.Stop(shutdownCtx); err != nil {
				logger.Warn("writer stop", "error", err)
			}
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("archiver running",
		"session_id", ctrl.SessionID(),
		"archive", cfg.Archive.Enabled,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	return g.Wait()
}

func watch(sub *subscription.Subscription, channel string, logger *slog.Logger) {
	sub.OnStateChange(func(s subscription.State) {
		logger.Debug("subscription state", "channel", channel, "state", s.String())
	})
	sub.OnKick(func() {
		logger.Warn("channel unsubscribed by relay", "channel", channel)
	})
	sub.OnError(func(reason string) {
		logger.Warn("channel error", "channel", channel, "reason", reason)
	})
}

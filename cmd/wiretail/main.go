// wiretail connects to a relay and streams channel publications to the console.
// Usage: go run ./cmd/wiretail --url wss://relay.example.com/connection/websocket --channel news,chat
//
// Tokens can also come from the environment:
//
//	WIRE_TOKEN          - connection token sent in CONNECT
//	WIRE_CHANNEL_TOKEN  - subscription token used for every channel
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rickgao/wire/internal/connection"
	"github.com/rickgao/wire/internal/model"
	"github.com/rickgao/wire/internal/protocol"
	"github.com/rickgao/wire/internal/router"
	"github.com/rickgao/wire/internal/token"
	"github.com/rickgao/wire/internal/version"
)

func main() {
	url := flag.String("url", "", "relay websocket URL")
	connToken := flag.String("token", os.Getenv("WIRE_TOKEN"), "connection token")
	channelToken := flag.String("channel-token", os.Getenv("WIRE_CHANNEL_TOKEN"), "subscription token")
	channels := flag.String("channel", "", "comma-separated channels to follow")
	codecName := flag.String("codec", "json", "wire codec: json or msgpack")
	verbose := flag.Bool("verbose", false, "print full payloads")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if *url == "" || *channels == "" {
		fmt.Fprintln(os.Stderr, "usage: wiretail --url <ws-url> --channel <name>[,<name>...]")
		os.Exit(2)
	}

	codec, err := protocol.CodecByName(*codecName)
	if err != nil {
		logger.Error("invalid codec", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transportCfg := connection.DefaultTransportConfig()
	transportCfg.URL = *url
	transportCfg.Binary = codec.Name() == "msgpack"
	transportCfg.Header = http.Header{"User-Agent": []string{version.UserAgent()}}

	ctrlCfg := connection.DefaultControllerConfig()
	ctrlCfg.Token = *connToken

	ctrl := connection.NewController(ctrlCfg,
		connection.NewWebsocketTransport(transportCfg, logger),
		connection.WithLogger(logger),
		connection.WithCodec(codec),
	)
	ctrl.OnStateChange(func(s connection.State) {
		logger.Info("connection state", "state", s.String())
	})

	rtr := router.New(router.DefaultConfig(), ctrl.SessionID(), logger)

	if err := ctrl.Start(ctx); err != nil {
		logger.Error("failed to start controller", "error", err)
		os.Exit(1)
	}
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		printPublications(rtr.Output(), *verbose)
	}()

	for _, channel := range strings.Split(*channels, ",") {
		channel := channel
		channel = strings.TrimSpace(channel)
		if channel == "" {
			continue
		}
		sub := ctrl.CreateChannel(token.NewStatic(channel, *channelToken))
		sub.OnKick(func() { logger.Warn("unsubscribed by relay", "channel", channel) })
		rtr.Attach(sub)

		if err := sub.Subscribe(ctx); err != nil {
			logger.Error("subscribe failed", "channel", channel, "error", err)
			continue
		}
		logger.Info("subscribed", "channel", channel)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs := ctrl.Stats()
				rs := rtr.Stats()
				logger.Info("stats",
					"state", cs.State.String(),
					"subscriptions", cs.Subscriptions,
					"received", rs.Received,
					"routed", rs.Routed,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	if err := ctrl.Stop(shutdownCtx); err != nil {
		logger.Warn("controller stop", "error", err)
	}
	if err := rtr.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop", "error", err)
	}
	<-done

	logger.Info("shutdown complete")
}

func printPublications(buf *router.GrowableBuffer[model.Publication], verbose bool) {
	for {
		pub, ok := buf.Receive()
		if !ok {
			return
		}
		fmt.Println(formatPublication(pub, verbose))
	}
}

// formatPublication renders one console line. Non-UTF-8 payloads are shown by size only.
func formatPublication(pub model.Publication, verbose bool) string {
	ts := pub.ReceivedTime().UTC().Format("15:04:05.000")
	kind := pub.Kind
	if kind == "" {
		kind = "-"
	}

	if !utf8.Valid(pub.Payload) {
		return fmt.Sprintf("%s [%s] kind=%s binary=%dB", ts, pub.Channel, kind, len(pub.Payload))
	}
	if verbose {
		return fmt.Sprintf("%s [%s] kind=%s %s", ts, pub.Channel, kind, pub.Payload)
	}

	const preview = 120
	body := string(pub.Payload)
	if len(body) > preview {
		body = body[:preview] + "..."
	}
	return fmt.Sprintf("%s [%s] kind=%s %s", ts, pub.Channel, kind, body)
}

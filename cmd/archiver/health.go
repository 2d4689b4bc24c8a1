package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/wire/internal/connection"
	"github.com/rickgao/wire/internal/router"
	"github.com/rickgao/wire/internal/writer"
)

// pinger reports database reachability. *pgxpool.Pool satisfies it.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthDeps are the components the health endpoint reports on. Archive fields are nil
// when archiving is disabled.
type healthDeps struct {
	controller interface{ Stats() connection.Stats }
	db         pinger
	router     router.Router
	writer     interface{ Stats() writer.WriterMetrics }
}

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

func createHealthHandler(deps healthDeps, metrics http.Handler, metricsPath string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := healthResponse{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stats := deps.controller.Stats()
		health.Components["connection"] = map[string]any{
			"session_id":        stats.SessionID,
			"state":             stats.State.String(),
			"subscriptions":     stats.Subscriptions,
			"pending_commands":  stats.PendingCommands,
			"oldest_command_ms": stats.OldestCommand.Milliseconds(),
		}
		switch stats.State {
		case connection.StateConnected:
		case connection.StateConnecting:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}

		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		if deps.router != nil {
			rs := deps.router.Stats()
			health.Components["router"] = map[string]any{
				"received": rs.Received,
				"routed":   rs.Routed,
				"dropped":  rs.Dropped,
				"backlog":  rs.Input.Count + rs.Output.Count,
			}
		}
		if deps.writer != nil {
			health.Components["writer"] = deps.writer.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Warn("encode health response", "error", err)
		}
	})

	mux.Handle(metricsPath, metrics)

	return mux
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mehanisik/crypto-predict-sub000/internal/api"
	"github.com/mehanisik/crypto-predict-sub000/internal/archive"
	"github.com/mehanisik/crypto-predict-sub000/internal/config"
	"github.com/mehanisik/crypto-predict-sub000/internal/connection"
	"github.com/mehanisik/crypto-predict-sub000/internal/database"
	"github.com/mehanisik/crypto-predict-sub000/internal/health"
	"github.com/mehanisik/crypto-predict-sub000/internal/metrics"
	"github.com/mehanisik/crypto-predict-sub000/internal/poller"
	"github.com/mehanisik/crypto-predict-sub000/internal/protocol"
	"github.com/mehanisik/crypto-predict-sub000/internal/room"
	"github.com/mehanisik/crypto-predict-sub000/internal/session"
	"github.com/mehanisik/crypto-predict-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"rest_url", cfg.Server.RestURL,
		"ws_url", cfg.Server.WSURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Archive database (optional)
	var pool *pgxpool.Pool
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("archive database connected")
	}

	// REST client
	apiClient := api.NewClient(
		cfg.Server.RestURL,
		cfg.Server.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Server.Timeout),
		api.WithRetries(cfg.Server.MaxRetries, time.Second),
	)

	// Session state machines
	sessions := session.NewTracker(cfg.Session.HistoryLimit, logger)

	// Connection manager
	mgr := connection.NewManager(connection.ManagerConfig{
		URL:                  cfg.Server.WSURL,
		DialTimeout:          cfg.Connection.DialTimeout,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		ReconnectBaseDelay:   cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Connection.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		LivenessTimeout:      cfg.Connection.LivenessTimeout,
		MessageBufferSize:    cfg.Connection.MessageBufferSize,
	}, logger)

	// Room tracker, restoring subscriptions across reconnects
	rooms := room.NewTracker(mgr, logger)
	mgr.OnPhaseChange(rooms.HandlePhaseChange)
	mgr.OnPhaseChange(func(old, new connection.Phase) {
		switch new {
		case connection.PhaseConnected:
			metrics.Connected.Set(1)
		case connection.PhaseReconnecting:
			metrics.Connected.Set(0)
			metrics.ReconnectAttempts.Inc()
		default:
			metrics.Connected.Set(0)
		}
		// A dial failure lands back in reconnecting or failed.
		if old == connection.PhaseConnecting && new != connection.PhaseConnected {
			metrics.ConnectFailures.Inc()
		}
	})

	// Archive writer
	var writer *archive.Writer
	if cfg.Archive.Enabled {
		writer = archive.NewWriter(cfg.Archive, pool, logger)
		if err := writer.Start(ctx, sessions); err != nil {
			logger.Error("failed to start archive writer", "error", err)
			os.Exit(1)
		}
	}

	// REST status fallback while the socket is down
	statusPoller := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
	}, apiClient, rooms, sessions, func() connection.Phase {
		return mgr.State().Phase
	}, logger)
	if err := statusPoller.Start(ctx); err != nil {
		logger.Error("failed to start status poller", "error", err)
		os.Exit(1)
	}

	// Message pump: raw frames -> canonical updates -> session machines
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for msg := range mgr.Messages() {
			metrics.MessagesReceived.Inc()
			u, err := protocol.Normalize(msg.Data, msg.ReceivedAt)
			if err != nil {
				metrics.ParseErrors.Inc()
				logger.Debug("frame degraded", "error", err)
			}
			sessions.SetActive(rooms.ActiveSession())
			sessions.Apply(u)
		}
	}()

	// Health score gauge
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := health.Score(mgr.Metrics())
				metrics.HealthScore.Set(float64(snap.Score))
			}
		}
	}()

	// HTTP surface: health, debug and Prometheus
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: createHandler(ctx, cfg, mgr, rooms, sessions, pool, logger),
	}
	go func() {
		logger.Info("starting http server", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	// Connect and join configured rooms
	mgr.Connect(ctx)
	for _, id := range cfg.Rooms.Sessions {
		rooms.JoinTraining(id)
	}
	sessions.SetActive(rooms.ActiveSession())

	logger.Info("monitor running",
		"ws_url", cfg.Server.WSURL,
		"sessions", cfg.Rooms.Sessions,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	statusPoller.Stop(shutdownCtx)
	mgr.Stop()
	<-pumpDone
	if writer != nil {
		writer.Stop(shutdownCtx)
	}
	httpServer.Shutdown(shutdownCtx)

	logger.Info("monitor stopped")
}

// createHandler builds the HTTP mux for health checks and debugging.
func createHandler(
	appCtx context.Context,
	cfg *config.MonitorConfig,
	mgr connection.Manager,
	rooms room.Tracker,
	sessions session.Tracker,
	pool *pgxpool.Pool,
	logger *slog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		state := mgr.State()
		snap := health.Score(mgr.Metrics())

		resp := struct {
			Status     string           `json:"status"`
			Phase      connection.Phase `json:"phase"`
			Health     health.Snapshot  `json:"health"`
			Components map[string]any   `json:"components"`
		}{
			Status:     "healthy",
			Phase:      state.Phase,
			Health:     snap,
			Components: make(map[string]any),
		}

		if state.Phase != connection.PhaseConnected {
			resp.Status = "degraded"
		}
		if state.Phase == connection.PhaseFailed {
			resp.Status = "unhealthy"
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				resp.Status = "unhealthy"
				resp.Components["archive_db"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				resp.Components["archive_db"] = "connected"
			}
		}

		resp.Components["rooms"] = map[string]int{
			"desired": len(rooms.Desired()),
			"joined":  len(rooms.Joined()),
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"connection": mgr.State(),
			"health":     health.Score(mgr.Metrics()),
			"desired":    rooms.Desired(),
			"joined":     rooms.Joined(),
			"active":     rooms.ActiveSession(),
		})
	})

	mux.HandleFunc("/debug/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions.Sessions())
	})

	mux.HandleFunc("/debug/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := mgr.DropTransport(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		logger.Info("transport dropped via debug endpoint")
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/debug/reconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		mgr.Reconnect(appCtx)
		logger.Info("manual reconnect via debug endpoint")
		w.WriteHeader(http.StatusAccepted)
	})

	mux.Handle(cfg.Metrics.Path, promhttp.Handler())

	return mux
}

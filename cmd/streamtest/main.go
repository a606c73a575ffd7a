// streamtest connects to the prediction server WebSocket, joins training
// rooms, and streams normalized updates to the console.
// Usage: go run ./cmd/streamtest --config configs/monitor.local.yaml --session abc
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mehanisik/crypto-predict-sub000/internal/config"
	"github.com/mehanisik/crypto-predict-sub000/internal/connection"
	"github.com/mehanisik/crypto-predict-sub000/internal/protocol"
	"github.com/mehanisik/crypto-predict-sub000/internal/room"
)

func main() {
	configPath := flag.String("config", "configs/monitor.local.yaml", "path to config file")
	sessionID := flag.String("session", "", "training session to join (overrides config)")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	sessions := cfg.Rooms.Sessions
	if *sessionID != "" {
		sessions = []string{*sessionID}
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions to join; pass --session or set rooms.sessions")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

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
	defer mgr.Stop()

	rooms := room.NewTracker(mgr, logger)
	mgr.OnPhaseChange(rooms.HandlePhaseChange)
	mgr.OnPhaseChange(func(old, new connection.Phase) {
		fmt.Printf("%s  phase %s -> %s\n", time.Now().Format("15:04:05.000"), old, new)
	})

	for _, id := range sessions {
		rooms.JoinTraining(id)
	}
	mgr.Connect(ctx)

	fmt.Printf("streaming from %s, sessions %v (ctrl-c to stop)\n", cfg.Server.WSURL, sessions)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-mgr.Messages():
			if !ok {
				return
			}
			u, err := protocol.Normalize(msg.Data, msg.ReceivedAt)
			if err != nil {
				fmt.Printf("%s  unparsed frame: %v\n", msg.ReceivedAt.Format("15:04:05.000"), err)
			}

			line := fmt.Sprintf("%s  session=%s stage=%s",
				msg.ReceivedAt.Format("15:04:05.000"), u.SessionID, u.Stage)
			if u.Progress != nil {
				line += fmt.Sprintf(" progress=%.1f", *u.Progress)
			}
			if u.Terminal {
				line += " terminal"
			}
			fmt.Println(line)

			if *verbose && len(u.Payload) > 0 {
				if data, err := json.MarshalIndent(u.Payload, "  ", "  "); err == nil {
					fmt.Printf("  %s\n", data)
				}
			}
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/attendance/internal/api"
	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting attendance API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := cfg.Engine.Location()
	if err != nil {
		slog.Error("resolve timezone", "error", err)
		os.Exit(1)
	}

	if cfg.Database.Driver == config.DriverMemory {
		slog.Error("the API service needs a store shared with the ingestor (postgres or sqlite), not memory")
		os.Exit(1)
	}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	nc, err := queue.Connect(cfg.NATS.URL, "attendance-api")
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	control := queue.NewControlClient(nc, cfg.NATS.ControlTimeout)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Relay attendance events to dashboards
	consumer, err := queue.NewConsumer(nc)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	go func() {
		// The ingestor creates the stream; retry until it exists.
		for {
			err := consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, ev models.AttendanceEvent) error {
				wsEv := dto.NewWSEvent(ev)
				hub.BroadcastEvent(&wsEv)
				return nil
			})
			if err == nil {
				return
			}
			slog.Warn("start event consumer (retrying...)", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		Store:   db,
		Control: control,
		Hub:     hub,
		Checks: map[string]handlers.Pinger{
			"database": db,
			"nats": handlers.PingFunc(func(context.Context) error {
				if !nc.IsConnected() {
					return fmt.Errorf("nats not connected")
				}
				return nil
			}),
		},
		Location: loc,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

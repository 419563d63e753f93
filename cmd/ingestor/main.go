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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/notify"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/reader"
	"github.com/your-org/attendance/internal/storage"
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
	slog.Info("starting attendance ingestor", "driver", cfg.Database.Driver, "source", cfg.Reader.Source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := cfg.Engine.Location()
	if err != nil {
		slog.Error("resolve timezone", "error", err)
		os.Exit(1)
	}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.SeedConfig(ctx, cfg.Policy.Values()); err != nil {
		slog.Error("seed policy", "error", err)
		os.Exit(1)
	}
	if n, err := storage.SeedEmployees(ctx, db, cfg.Seed.Employees); err != nil {
		slog.Error("seed employees", "error", err)
		os.Exit(1)
	} else if n > 0 {
		slog.Info("seeded employees", "created", n)
	}
	if cfg.Database.Driver == config.DriverMemory {
		slog.Warn("memory store is private to this process; the API service cannot read it")
	}

	policy, err := attendance.NewPolicyHolder(loadPolicy(ctx, db))
	if err != nil {
		slog.Error("init policy", "error", err)
		os.Exit(1)
	}

	// Optional archive of cleared days
	var archiver attendance.Archiver
	if cfg.MinIO.Enabled {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		archiver = minioStore
	}

	// Connect to NATS
	nc, err := queue.Connect(cfg.NATS.URL, "attendance-ingestor")
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	producer, err := queue.NewProducer(nc)
	if err != nil {
		slog.Error("create producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	go func() {
		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
	}()

	dispatcher := notify.NewDispatcher(producer.PublishAttendance, cfg.Engine.PublishBuffer)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx)
	}()

	engine := attendance.NewEngine(attendance.Deps{
		Directory: db,
		Store:     db,
		Log:       db,
		Publisher: dispatcher,
		Policy:    policy,
		Archiver:  archiver,
	}, attendance.Options{Location: loc, ScanTimeout: cfg.Engine.ScanTimeout})

	source, err := newSource(cfg.Reader)
	if err != nil {
		slog.Error("create reader source", "error", err)
		os.Exit(1)
	}

	manager := reader.NewManager(engine, source,
		func(ctx context.Context) (attendance.Policy, error) { return policy.Reload(ctx, db) },
		reader.Options{MaxRetries: cfg.Reader.MaxRetries, DeviceID: cfg.Reader.DeviceID},
	)

	// Reader control commands (raw NATS request/reply)
	sub, err := queue.ServeControl(ctx, nc, manager.HandleCommand)
	if err != nil {
		slog.Error("subscribe to control", "error", err)
		os.Exit(1)
	}

	if cfg.Reader.AutoStart {
		manager.Start(ctx)
	}

	// Metrics endpoint
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("ingestor metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down ingestor...")
	_ = sub.Drain()
	manager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := manager.Wait(shutdownCtx); err != nil {
		slog.Warn("reader did not stop in time", "error", err)
	}

	// Flush pending notifications before the connection closes.
	cancel()
	<-dispatchDone

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}
	slog.Info("ingestor stopped")
}

// loadPolicy reads the stored policy, falling back to the built-in default
// when the stored values are unreadable or invalid.
func loadPolicy(ctx context.Context, db storage.Store) attendance.Policy {
	values, err := db.ConfigValues(ctx)
	if err != nil {
		slog.Warn("read policy, using defaults", "error", err)
		return attendance.DefaultPolicy()
	}
	p, err := attendance.ParsePolicy(values)
	if err != nil {
		slog.Warn("stored policy invalid, using defaults", "error", err)
		return attendance.DefaultPolicy()
	}
	return p
}

func newSource(cfg config.ReaderConfig) (reader.Source, error) {
	switch cfg.Source {
	case "tcp":
		return &reader.TCPSource{Address: cfg.Address, DeviceID: cfg.DeviceID}, nil
	case "stdin":
		return &reader.LineSource{R: os.Stdin, DeviceID: cfg.DeviceID}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported reader source %q", cfg.Source)
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
